package middleware

import (
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

var filteredHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

// Sentry opens a transaction per request on a hub cloned for it, so scope
// data set while handling one request never leaks into another.
func Sentry() gin.HandlerFunc {
	return func(c *gin.Context) {
		parent := sentry.CurrentHub()
		if parent == nil || parent.Client() == nil {
			c.Next()
			return
		}

		hub := parent.Clone()
		ctx := sentry.SetHubOnContext(c.Request.Context(), hub)

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		transaction := sentry.StartTransaction(ctx,
			c.Request.Method+" "+route,
			sentry.ContinueFromRequest(c.Request),
		)
		defer func() {
			transaction.Status = sentry.HTTPtoSpanStatus(c.Writer.Status())
			transaction.Finish()
		}()

		hub.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetContext("request", map[string]interface{}{
				"method":  c.Request.Method,
				"url":     c.Request.URL.String(),
				"headers": safeHeaders(c.Request.Header),
			})
			scope.SetTag("http.method", c.Request.Method)
			scope.SetTag("http.route", route)
			scope.SetTag("request_id", RequestID(c))
		})

		c.Request = c.Request.WithContext(transaction.Context())
		c.Next()

		if p := CurrentPrincipal(c); p != nil {
			hub.ConfigureScope(func(scope *sentry.Scope) {
				scope.SetUser(sentry.User{ID: p.Username})
			})
		}
	}
}

func safeHeaders(h http.Header) map[string]interface{} {
	safe := make(map[string]interface{}, len(h))
	for k, v := range h {
		safe[k] = v
		for _, f := range filteredHeaders {
			if strings.EqualFold(k, f) {
				safe[k] = "[FILTERED]"
			}
		}
	}
	return safe
}
