package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fitness-crm/utils"
)

// ErrorHandler reports errors that handlers attached with c.Error. Only
// server-side failures reach Sentry; client errors are logged at debug.
func ErrorHandler(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		status := c.Writer.Status()
		fields := logrus.Fields{
			"endpoint":   c.FullPath(),
			"method":     c.Request.Method,
			"status":     status,
			"request_id": RequestID(c),
		}
		if p := CurrentPrincipal(c); p != nil {
			fields["user_id"] = p.UserID
		}

		for _, ginErr := range c.Errors {
			if status < 500 {
				log.WithFields(fields).WithError(ginErr.Err).Debug("request failed")
				continue
			}

			log.WithFields(fields).WithError(ginErr.Err).Error("request failed")
			utils.CaptureError(ginErr.Err, fields)
		}
	}
}
