package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ginKey = "logger"

// quietPrefixes are polled by probes and scrapers and log at debug level.
var quietPrefixes = []string{"/health", "/readyz", "/metrics"}

// Middleware attaches a request-scoped logger and writes one line per
// request once the handler chain has finished. Handlers further down may
// replace the attached logger (JWT auth adds the caller's identity), and
// the completion line uses whichever logger is attached at the end.
func Middleware(base *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetString("requestID")
		if requestID == "" {
			requestID = c.GetHeader("X-Request-ID")
		}
		if requestID == "" {
			requestID = uuid.New().String()
			c.Header("X-Request-ID", requestID)
		}
		Attach(c, base.WithRequestID(requestID))

		start := time.Now()
		c.Next()

		reqLogger := FromGin(c, base)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		reqLogger.LogRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))

		for _, err := range c.Errors {
			reqLogger.LogError(err.Err, "request error",
				"method", c.Request.Method,
				"route", route,
				"error_type", err.Type,
			)
		}
	}
}

// Attach makes l the request logger for both the gin context and the
// request context handed to services.
func Attach(c *gin.Context, l *Logger) {
	c.Set(ginKey, l)
	c.Request = c.Request.WithContext(IntoContext(c.Request.Context(), l))
}

// FromGin returns the attached request logger, or fallback.
func FromGin(c *gin.Context, fallback *Logger) *Logger {
	if v, ok := c.Get(ginKey); ok {
		if l, ok := v.(*Logger); ok && l != nil {
			return l
		}
	}
	return fallback
}

func requestLevel(path string, status int) string {
	switch {
	case status >= http.StatusInternalServerError:
		return "error"
	case status >= http.StatusBadRequest:
		return "warn"
	}
	for _, p := range quietPrefixes {
		if strings.HasPrefix(path, p) {
			return "debug"
		}
	}
	return "info"
}
