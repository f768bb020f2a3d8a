package utils

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

func InitSentry(dsn, environment, version string) error {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          "fitness-crm@" + version,
		TracesSampleRate: 0.2,
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	return nil
}

// FlushSentry delivers buffered events; call it before the process exits.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// CaptureError reports err with the request fields attached. request_id
// becomes a tag and user_id the Sentry user so events can be searched by them.
func CaptureError(err error, fields map[string]interface{}) {
	hub := sentry.CurrentHub()
	if hub == nil || hub.Client() == nil {
		return
	}

	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range fields {
			switch k {
			case "request_id":
				scope.SetTag(k, fmt.Sprint(v))
			case "user_id":
				scope.SetUser(sentry.User{ID: fmt.Sprint(v)})
			default:
				scope.SetExtra(k, v)
			}
		}
		hub.CaptureException(err)
	})
}
