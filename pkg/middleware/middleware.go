package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"bizpulse/internal/constants"
	"bizpulse/internal/logger"
	"bizpulse/pkg/errors"
	"bizpulse/pkg/logging"
)

const userIDKey = "user_id"

// LoggerMiddleware writes one line per request. Server errors log at error
// level, client errors at warn.
func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []interface{}{
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
		}
		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			fields = append(fields, "error", msg)
		}

		ctx := c.Request.Context()
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.ErrorwCtx(ctx, "HTTP request", fields...)
		case status >= http.StatusBadRequest:
			log.WarnwCtx(ctx, "HTTP request", fields...)
		default:
			log.InfowCtx(ctx, "HTTP request", fields...)
		}
	}
}

// RecoveryMiddleware answers 500 on a handler panic. The stack goes to the
// log, never to the client.
func RecoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		err := errors.RecoverPanic(recovered)
		log.ErrorwCtx(c.Request.Context(), "Panic recovered",
			"error", err,
			"route", c.FullPath(),
			"method", c.Request.Method,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errors.ToErrorResponse(errors.ErrInternal))
	})
}

// RequestIDMiddleware propagates X-Request-ID and uses it as the trace ID
// of log lines and of alerts dispatched while serving the request.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(logging.WithTraceID(c.Request.Context(), requestID))
		c.Next()
	}
}

// RequireUser reads the actor set by the upstream auth layer.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(constants.HeaderUserID), 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errors.ToErrorResponse(
				errors.ErrUnauthorized.WithDetail("message", "missing or invalid "+constants.HeaderUserID+" header"),
			))
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

// UserID returns the actor stored by RequireUser.
func UserID(c *gin.Context) int64 {
	return c.GetInt64(userIDKey)
}
