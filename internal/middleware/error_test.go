package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/pawtrack/pawtrack-api/internal/handler"
	apperrors "github.com/pawtrack/pawtrack-api/pkg/errors"
)

func newErrorRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())
	return r
}

func serve(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestErrorHandlerMapsAppErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", apperrors.NotFound("webhook", nil), http.StatusNotFound, "webhook not found"},
		{"bad request", apperrors.BadRequest("unknown event types: cat.created", nil), http.StatusBadRequest, "unknown event types: cat.created"},
		{"unauthorized", apperrors.Unauthorized(errors.New("token expired")), http.StatusUnauthorized, "unauthorized"},
		{"conflict", apperrors.Conflict("appointment already completed", nil), http.StatusConflict, "appointment already completed"},
		{"internal", apperrors.Internal(errors.New("pq: connection refused")), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newErrorRouter()
			r.GET("/x", func(c *gin.Context) {
				handler.RespondError(c, tc.err)
			})

			w := serve(r, "/x")

			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.message)
		})
	}
}

func TestErrorHandlerHidesUnknownErrors(t *testing.T) {
	r := newErrorRouter()
	r.GET("/x", func(c *gin.Context) {
		handler.RespondError(c, errors.New("driver: bad connection"))
	})

	w := serve(r, "/x")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
	assert.NotContains(t, w.Body.String(), "bad connection")
}

func TestErrorHandlerWrapsDetailMessagesOnly(t *testing.T) {
	// The wrapped cause is for logs; clients only see the message.
	r := newErrorRouter()
	r.GET("/x", func(c *gin.Context) {
		handler.RespondError(c, apperrors.NotFound("pet", errors.New("sql: no rows in result set")))
	})

	w := serve(r, "/x")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "pet not found")
	assert.NotContains(t, w.Body.String(), "no rows")
}

func TestErrorHandlerKeepsWrittenResponses(t *testing.T) {
	r := newErrorRouter()
	r.GET("/x", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"queued": true})
		_ = c.Error(errors.New("recorded for logging only"))
	})

	w := serve(r, "/x")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "queued")
}

func TestErrorHandlerNoErrors(t *testing.T) {
	r := newErrorRouter()
	r.GET("/x", func(c *gin.Context) {
		c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
	})

	w := serve(r, "/x")

	assert.Equal(t, http.StatusOK, w.Code)
}
