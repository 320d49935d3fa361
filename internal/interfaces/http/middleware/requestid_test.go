package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequestIDRouter(seen *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/test", func(c *gin.Context) {
		*seen = GetRequestID(c)
		c.Status(http.StatusOK)
	})
	return router
}

func TestRequestID(t *testing.T) {
	t.Run("generates an ID when none is supplied", func(t *testing.T) {
		var seen string
		router := newRequestIDRouter(&seen)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		require.NotEmpty(t, seen)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
		assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
	})

	t.Run("propagates a valid inbound ID", func(t *testing.T) {
		var seen string
		router := newRequestIDRouter(&seen)

		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.Header.Set(RequestIDHeader, "upstream-abc-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "upstream-abc-123", seen)
		assert.Equal(t, "upstream-abc-123", w.Header().Get(RequestIDHeader))
	})

	t.Run("replaces malformed inbound IDs", func(t *testing.T) {
		tests := []struct {
			name string
			id   string
		}{
			{"too long", strings.Repeat("a", maxRequestIDLength+1)},
			{"contains space", "abc def"},
			{"contains control character", "abc\x01def"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var seen string
				router := newRequestIDRouter(&seen)

				req := httptest.NewRequest(http.MethodGet, "/test", nil)
				req.Header.Set(RequestIDHeader, tt.id)
				w := httptest.NewRecorder()
				router.ServeHTTP(w, req)

				assert.NotEqual(t, tt.id, seen)
				_, err := uuid.Parse(seen)
				assert.NoError(t, err)
			})
		}
	})
}

func TestGetRequestID_FallsBackToHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set(RequestIDHeader, "hdr-1")

	assert.Equal(t, "hdr-1", GetRequestID(c))
}
