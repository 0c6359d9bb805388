package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/pawtrack/pawtrack-api/internal/handler"
	apperrors "github.com/pawtrack/pawtrack-api/pkg/errors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorHandler logs errors recorded on the context and writes the response
// for the last one. Application errors carry their own HTTP status; anything
// else becomes a bare 500 so internals never leak to clients.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)

		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		// A handler that already wrote a response only wanted the logging.
		if c.Writer.Written() {
			return
		}

		status := http.StatusInternalServerError
		message := "internal server error"

		lastErr := c.Errors.Last()
		var appErr *apperrors.AppError
		if errors.As(lastErr.Err, &appErr) {
			status = appErr.StatusCode()
			message = appErr.Message
		} else if sc, ok := lastErr.Err.(interface{ StatusCode() int }); ok {
			status = sc.StatusCode()
		}

		c.JSON(status, handler.NewErrorResponse(message))
	}
}
