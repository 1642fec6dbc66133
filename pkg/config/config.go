package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port            string
		Env             string
		Timeout         time.Duration
		ShutdownTimeout time.Duration
		BaseURL         string
	}

	// Database configuration
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
	}

	// Store selects the conversation store backend
	Store struct {
		Driver     string
		SQLitePath string
	}

	// JWT configuration
	JWT struct {
		Secret      string
		ExpiryHours time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		TrustedProxies []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Moderation configuration
	Moderation struct {
		ClassifierEnabled bool
		ClassifierURL     string
		ClassifierModel   string
		ClassifierTimeout time.Duration
		LexiconCacheTTL   time.Duration
		SeedLexicon       bool
	}

	// Alerting configuration for blocked-content notifications
	Alerting struct {
		Enabled bool
		APIURL  string
		From    string
		To      []string
		Timeout time.Duration
	}

	// Redis backs the identity directory cache
	Redis struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
		TTL      time.Duration
	}

	// Delivery options
	Delivery struct {
		BroadcastUnresolved bool
	}

	// WebSocket options
	WebSocket struct {
		MessageRate  float64
		MessageBurst int
		SendBuffer   int
	}

	// GRPC health endpoint
	GRPC struct {
		Port string
	}

	// Vault secrets
	Vault struct {
		Enabled bool
	}

	// Tracing writes spans to stdout when enabled
	Tracing struct {
		Enabled bool
	}

	// Cache settings
	Cache struct {
		Enabled     bool
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads a fresh Config from the environment without touching the
// singleton.
func Load() *Config {
	cfg := &Config{}

	// Server config
	cfg.Server.Port = getEnvString("PORT", "8081")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
	cfg.Server.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.Server.Port)

	// Database config
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "mentorchat")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

	cfg.Store.Driver = strings.ToLower(getEnvString("STORE_DRIVER", StoreDriverPostgres))
	cfg.Store.SQLitePath = getEnvString("SQLITE_PATH", "mentorchat.db")

	// JWT config
	cfg.JWT.Secret = getEnvString("JWT_SECRET", "default-jwt-secret-do-not-use-in-production")
	cfg.JWT.ExpiryHours = getEnvDuration("JWT_EXPIRY", 24*time.Hour)

	// Security config
	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 5)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20)

	// Logging config
	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	// Moderation config
	cfg.Moderation.ClassifierEnabled = getEnvBool("CLASSIFIER_ENABLED", false)
	cfg.Moderation.ClassifierURL = getEnvString("CLASSIFIER_URL", "https://api.openai.com/v1/chat/completions")
	cfg.Moderation.ClassifierModel = getEnvString("CLASSIFIER_MODEL", "gpt-4o-mini")
	cfg.Moderation.ClassifierTimeout = getEnvDuration("CLASSIFIER_TIMEOUT", 5*time.Second)
	cfg.Moderation.LexiconCacheTTL = getEnvDuration("LEXICON_CACHE_TTL", 30*time.Second)
	cfg.Moderation.SeedLexicon = getEnvBool("SEED_LEXICON", false)

	// Alerting config
	cfg.Alerting.Enabled = getEnvBool("ALERTS_ENABLED", false)
	cfg.Alerting.APIURL = getEnvString("ALERTS_API_URL", "")
	cfg.Alerting.From = getEnvString("ALERTS_FROM", "moderation@localhost")
	cfg.Alerting.To = getEnvStringSlice("ALERTS_TO", nil)
	cfg.Alerting.Timeout = getEnvDuration("ALERTS_TIMEOUT", 10*time.Second)

	// Redis config
	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", false)
	cfg.Redis.Addr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.TTL = getEnvDuration("DIRECTORY_CACHE_TTL", 10*time.Minute)

	cfg.Delivery.BroadcastUnresolved = getEnvBool("BROADCAST_UNRESOLVED", false)

	// WebSocket config
	cfg.WebSocket.MessageRate = getEnvFloat("WS_MESSAGE_RATE", 10)
	cfg.WebSocket.MessageBurst = getEnvInt("WS_MESSAGE_BURST", 20)
	cfg.WebSocket.SendBuffer = getEnvInt("WS_SEND_BUFFER", 256)

	cfg.GRPC.Port = getEnvString("GRPC_PORT", "9091")
	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", false)

	// Cache settings
	cfg.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	cfg.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
	cfg.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)

	return cfg
}

// IsDevelopment reports whether the service runs in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
