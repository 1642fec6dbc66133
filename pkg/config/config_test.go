package config

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.False(t, cfg.Moderation.ClassifierEnabled)
	assert.False(t, cfg.Delivery.BroadcastUnresolved)
	assert.Equal(t, 5*time.Second, cfg.Moderation.ClassifierTimeout)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/chat.db")
	t.Setenv("CLASSIFIER_ENABLED", "true")
	t.Setenv("CLASSIFIER_TIMEOUT", "250ms")
	t.Setenv("ALERTS_TO", "a@x.io, b@x.io,")
	t.Setenv("BROADCAST_UNRESOLVED", "1")
	t.Setenv("WS_MESSAGE_RATE", "2.5")

	cfg := Load()

	assert.Equal(t, StoreDriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/chat.db", cfg.Store.SQLitePath)
	assert.True(t, cfg.Moderation.ClassifierEnabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Moderation.ClassifierTimeout)
	assert.Equal(t, []string{"a@x.io", "b@x.io"}, cfg.Alerting.To)
	assert.True(t, cfg.Delivery.BroadcastUnresolved)
	assert.Equal(t, 2.5, cfg.WebSocket.MessageRate)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DB_MAX_CONNS", "lots")
	t.Setenv("JWT_EXPIRY", "forever")

	cfg := Load()

	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, 24*time.Hour, cfg.JWT.ExpiryHours)
}

func TestNewDBWithSQLite(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Env = "test"
	cfg.Store.Driver = StoreDriverSQLite
	cfg.Store.SQLitePath = filepath.Join(t.TempDir(), "chat.db")

	db, err := NewDB(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.NoError(t, TestConnection(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Close())
}

func TestDialectorRejectsUnknownDriver(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Driver = "oracle"
	_, err := cfg.Dialector()
	assert.Error(t, err)
}
