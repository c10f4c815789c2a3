package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fortuneofweb3/blabz/pkg/logging"
)

// loggedParams are route parameters copied onto request loggers.
var loggedParams = []string{"handle", "name"}

// SetupCommonMiddleware installs request ids, access logging, recovery and CORS.
func SetupCommonMiddleware(r *gin.Engine, logger logging.Logger, allowOrigins []string) {
	r.Use(RequestIDMiddleware(), LoggingMiddleware(logger), RecoveryMiddleware(logger), CORSMiddleware(allowOrigins))
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// GetContextLogger scopes logger to the request: id, method, route and the
// handle or project named in the path.
func GetContextLogger(c *gin.Context, logger logging.Logger) *logrus.Entry {
	fields := logging.Fields{
		"request_id": GetRequestID(c),
		"method":     c.Request.Method,
		"route":      c.FullPath(),
	}
	for _, key := range loggedParams {
		if v := c.Param(key); v != "" {
			fields[key] = v
		}
	}
	return logger.WithFields(fields)
}
