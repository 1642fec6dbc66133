package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mentorchat/backend/pkg/config"
	"mentorchat/backend/pkg/di"
	"mentorchat/backend/pkg/jwt"
	"mentorchat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Load()
	cfg.Server.Env = "test"
	cfg.Store.Driver = config.StoreDriverSQLite
	cfg.Security.RateLimit = 1000
	cfg.Security.RateLimitBurst = 1000
	cfg.Security.AllowedOrigins = []string{"*"}
	cfg.Moderation.SeedLexicon = true
	cfg.Moderation.ClassifierEnabled = false
	cfg.Alerting.Enabled = false
	cfg.Redis.Enabled = false
	cfg.Vault.Enabled = false

	dsn := fmt.Sprintf("file:router_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	container, err := di.New(cfg, db, logger.Discard())
	require.NoError(t, err)

	r := New(container)
	r.SetupRoutes()
	t.Cleanup(func() {
		r.Close()
		container.Close(context.Background())
		sqlDB.Close()
	})
	return r
}

func (r *Router) call(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

type account struct {
	ID    uint
	Token string
}

func (r *Router) signup(t *testing.T, name, email string) account {
	t.Helper()
	w := r.call(t, "", http.MethodPost, "/api/v1/auth/signup", gin.H{
		"name":     name,
		"email":    email,
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		User struct {
			ID uint `json:"id"`
		} `json:"user"`
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return account{ID: resp.User.ID, Token: resp.Token}
}

func TestMessageRoundTripThroughRoutes(t *testing.T) {
	r := newTestRouter(t)
	student := r.signup(t, "Student", "student@example.com")
	mentor := r.signup(t, "Mentor", "mentor@example.com")

	w := r.call(t, student.Token, http.MethodPost, "/api/v1/messages", gin.H{
		"to":      "Mentor@Example.com",
		"content": "Could we review my thesis outline?",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = r.call(t, mentor.Token, http.MethodGet, "/api/v1/conversations", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list struct {
		Conversations []struct {
			ID     uint  `json:"id"`
			PeerID *uint `json:"peer_id"`
			Unread int   `json:"unread"`
		} `json:"conversations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Conversations, 1)
	conv := list.Conversations[0]
	assert.Equal(t, 1, conv.Unread)
	require.NotNil(t, conv.PeerID)
	assert.Equal(t, student.ID, *conv.PeerID)

	path := fmt.Sprintf("/api/v1/conversations/%d/read", conv.ID)
	w = r.call(t, mentor.Token, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var read struct {
		Conversation struct {
			Unread int `json:"unread"`
		} `json:"conversation"`
		Read []uint `json:"read"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &read))
	assert.Equal(t, 0, read.Conversation.Unread)
	assert.Len(t, read.Read, 1)

	w = r.call(t, student.Token, http.MethodGet, fmt.Sprintf("/api/v1/conversations/%d/messages", conv.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"read"`)
}

func TestSeededLexiconBlocksThroughRoutes(t *testing.T) {
	r := newTestRouter(t)
	student := r.signup(t, "Student", "student@example.com")
	r.signup(t, "Mentor", "mentor@example.com")

	w := r.call(t, student.Token, http.MethodPost, "/api/v1/messages", gin.H{
		"to":      "mentor@example.com",
		"content": "Please send me money for the course",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"blocked"`)

	admin, err := r.Container.JWTService.GenerateToken(999, "admin@example.com", jwt.RoleAdmin)
	require.NoError(t, err)
	w = r.call(t, admin, http.MethodGet, "/api/v1/admin/moderation-logs?verdict=blocked", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "send me money")

	w = r.call(t, student.Token, http.MethodGet, "/api/v1/admin/moderation-logs", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSchemaValidationRejectsMalformedBodies(t *testing.T) {
	r := newTestRouter(t)
	student := r.signup(t, "Student", "student@example.com")

	w := r.call(t, student.Token, http.MethodPost, "/api/v1/messages", gin.H{"content": "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_FAILED")
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	r := newTestRouter(t)

	w := r.call(t, "", http.MethodGet, "/api/v1/conversations", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = r.call(t, "", http.MethodGet, "/ws", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOperationalRoutes(t *testing.T) {
	r := newTestRouter(t)
	r.Container.Health.RunChecks()

	w := r.call(t, "", http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"database"`)

	w = r.call(t, "", http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	student := r.signup(t, "Student", "student@example.com")
	r.call(t, student.Token, http.MethodPost, "/api/v1/messages", gin.H{"to": "nobody@example.com", "content": "hello"})

	w = r.call(t, "", http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chat_messages_submitted_total")

	w = r.call(t, "", http.MethodGet, "/api/docs/openapi.yaml", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/messages")
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/messages", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
