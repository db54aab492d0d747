package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSystemRouter(h *SystemHandler) *gin.Engine {
	r := gin.New()
	r.GET("/health", h.Health)
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestNewSystemHandler(t *testing.T) {
	h := NewSystemHandler("bakery", "1.2.3")
	assert.NotNil(t, h)
	assert.False(t, h.startTime.IsZero())
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	w := httptest.NewRecorder()
	setupSystemRouter(NewSystemHandler("bakery", "1.2.3")).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/system/info", nil))

	require.Equal(t, http.StatusOK, w.Code)
	resp, data := decode(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "bakery", data["name"])
	assert.Equal(t, "1.2.3", data["version"])
	assert.NotEmpty(t, data["go_version"])
}

func TestSystemHandler_Health(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		w := httptest.NewRecorder()
		setupSystemRouter(NewSystemHandler("bakery", "dev")).
			ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, w.Code)
		_, data := decode(t, w)
		assert.Equal(t, "ok", data["status"])
	})

	t.Run("all healthy", func(t *testing.T) {
		h := NewSystemHandler("bakery", "dev",
			HealthCheck{Name: "database", Check: func(context.Context) error { return nil }},
			HealthCheck{Name: "redis", Check: func(context.Context) error { return nil }},
		)
		w := httptest.NewRecorder()
		setupSystemRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusOK, w.Code)
		_, data := decode(t, w)
		assert.Equal(t, map[string]any{"database": "ok", "redis": "ok"}, data["checks"])
	})

	t.Run("dependency down", func(t *testing.T) {
		h := NewSystemHandler("bakery", "dev",
			HealthCheck{Name: "database", Check: func(context.Context) error { return nil }},
			HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("dial tcp: connection refused") }},
		)
		w := httptest.NewRecorder()
		setupSystemRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		resp, data := decode(t, w)
		assert.False(t, resp.Success)
		assert.Equal(t, "degraded", data["status"])
		checks := data["checks"].(map[string]any)
		assert.Equal(t, "ok", checks["database"])
		assert.Contains(t, checks["redis"], "connection refused")
	})
}
