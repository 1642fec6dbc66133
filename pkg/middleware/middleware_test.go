package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mentorchat/backend/pkg/errors"
	"mentorchat/backend/pkg/jwt"
	"mentorchat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(errors.ErrorHandler())
	return r
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	rl := NewRateLimiter(logger.Discard(), RateLimiterOptions{
		Limit:          rate.Every(time.Hour),
		Burst:          2,
		ExpiryDuration: time.Minute,
	})
	defer rl.Stop()

	r := newEngine()
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestJWTAuthAcceptsHeaderAndQuery(t *testing.T) {
	svc := jwt.NewService("s", time.Hour)
	token, err := svc.GenerateToken(9, "u@x.io", jwt.RoleUser)
	require.NoError(t, err)

	r := newEngine()
	r.GET("/me", JWTAuthMiddleware(svc, logger.Discard()), func(c *gin.Context) {
		id, ok := CurrentUserID(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+token, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthTagsRequestLogger(t *testing.T) {
	svc := jwt.NewService("s", time.Hour)
	token, err := svc.GenerateToken(9, "u@x.io", jwt.RoleUser)
	require.NoError(t, err)

	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "info", JSON: true, Output: &buf})

	r := newEngine()
	r.Use(logger.Middleware(log))
	r.GET("/me", JWTAuthMiddleware(svc, log), func(c *gin.Context) {
		logger.FromContext(c.Request.Context(), nil).Info("handled")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", "req-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "9", entry["user_id"])
		assert.Equal(t, "req-1", entry["request_id"])
	}

	var done map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &done))
	assert.Equal(t, "request completed", done["msg"])
	assert.Equal(t, "/me", done["route"])
}

func TestRequirePermission(t *testing.T) {
	svc := jwt.NewService("s", time.Hour)
	userToken, _ := svc.GenerateToken(1, "u@x.io", jwt.RoleUser)
	adminToken, _ := svc.GenerateToken(2, "a@x.io", jwt.RoleAdmin)

	r := newEngine()
	r.GET("/admin",
		JWTAuthMiddleware(svc, logger.Discard()),
		RequirePermission(jwt.PermissionReadModerationLog),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	for token, want := range map[string]int{userToken: http.StatusForbidden, adminToken: http.StatusOK} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	r := newEngine()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		assert.NotEmpty(t, GetRequestID(c.Request.Context()))
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
