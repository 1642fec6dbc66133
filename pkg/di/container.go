package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mentorchat/backend/internal/alerting"
	"mentorchat/backend/internal/delivery"
	"mentorchat/backend/internal/lifecycle"
	"mentorchat/backend/internal/moderation"
	"mentorchat/backend/internal/presence"
	"mentorchat/backend/internal/service"
	"mentorchat/backend/internal/store"
	"mentorchat/backend/internal/ws"
	"mentorchat/backend/pkg/cache"
	"mentorchat/backend/pkg/config"
	"mentorchat/backend/pkg/health"
	"mentorchat/backend/pkg/jwt"
	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/pkg/resilience"
	"mentorchat/backend/pkg/secrets"
	"mentorchat/backend/shared/observability"
	"mentorchat/backend/shared/redis"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"gorm.io/gorm"
)

// Secret names looked up through the secrets manager
const (
	SecretJWT           = "JWT_SECRET"
	SecretClassifierKey = "OPENAI_API_KEY"
	SecretAlertsKey     = "ALERTS_API_KEY"
)

// Container holds all the dependencies for the application
type Container struct {
	Config  *config.Config
	DB      *gorm.DB
	Logger  *logger.Logger
	Secrets secrets.Manager

	JWTService  *jwt.Service
	Redis       *redis.RedisClient
	Store       store.Store
	Registry    *presence.Registry
	Router      *delivery.Router
	Lifecycle   *lifecycle.Manager
	Lexicon     *moderation.CachedLexicon
	Gate        *moderation.Gate
	Alerts      *alerting.Dispatcher
	UserService *service.UserService
	ChatService *service.ChatService
	Hub         *ws.Hub
	Health      *health.Checker

	Metrics        *observability.ChatMetrics
	MetricsHandler http.Handler

	classifier    *moderation.OpenAIClassifier
	meterProvider *sdkmetric.MeterProvider
	lexiconCache  *cache.Cache
	vault         *secrets.VaultManager
}

// New builds every component from cfg on top of an open database.
func New(cfg *config.Config, db *gorm.DB, log *logger.Logger) (*Container, error) {
	if cfg == nil {
		cfg = config.Get()
	}
	if log == nil {
		log = logger.New(logger.DefaultConfig())
	}
	ctx := context.Background()

	if err := store.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	c := &Container{Config: cfg, DB: db, Logger: log}

	vault, err := secrets.NewVaultManager(secrets.VaultConfigFromEnv(cfg.Vault.Enabled), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets manager: %w", err)
	}
	c.vault = vault
	c.Secrets = vault

	c.JWTService = jwt.NewService(vault.GetSecretWithDefault(ctx, SecretJWT, cfg.JWT.Secret), cfg.JWT.ExpiryHours)

	provider, metricsHandler, err := observability.SetupPrometheusMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}
	c.meterProvider = provider
	c.MetricsHandler = metricsHandler
	c.Metrics, err = observability.NewChatMetrics(provider.Meter(observability.ServiceName))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat metrics: %w", err)
	}

	var userOpts []service.UserServiceOption
	if cfg.Redis.Enabled {
		c.Redis = redis.NewRedisClient(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		userOpts = append(userOpts, service.WithDirectoryCache(c.Redis, cfg.Redis.TTL))
	}
	c.UserService = service.NewUserService(db, c.JWTService, log, userOpts...)

	c.Store = store.NewGormStore(db)
	c.Registry = presence.NewRegistry()
	c.Router = delivery.NewRouter(c.Registry, log,
		delivery.WithBroadcastUnresolved(cfg.Delivery.BroadcastUnresolved))
	c.Lifecycle = lifecycle.NewManager(c.Store, c.Router, log)

	if err := c.buildGate(ctx); err != nil {
		return nil, err
	}
	if err := c.buildAlerts(ctx); err != nil {
		return nil, err
	}

	c.ChatService = service.NewChatService(c.Store, c.UserService, c.Gate, c.Router, c.Lifecycle,
		log,
		service.WithAlerts(c.Alerts),
		service.WithMetrics(c.Metrics),
	)

	wsCfg := ws.DefaultConfig()
	if cfg.WebSocket.MessageRate > 0 {
		wsCfg.MessageRate = cfg.WebSocket.MessageRate
	}
	if cfg.WebSocket.MessageBurst > 0 {
		wsCfg.MessageBurst = cfg.WebSocket.MessageBurst
	}
	if cfg.WebSocket.SendBuffer > 0 {
		wsCfg.SendBuffer = cfg.WebSocket.SendBuffer
	}
	wsCfg.AllowedOrigins = cfg.Security.AllowedOrigins
	c.Hub = ws.NewHub(c.Registry, c.ChatService, wsCfg, c.Metrics, log)

	c.buildHealth()

	return c, nil
}

func (c *Container) buildGate(ctx context.Context) error {
	cfg := c.Config

	if cfg.Moderation.SeedLexicon {
		n, err := moderation.Seed(ctx, c.DB, moderation.DefaultLexicon)
		if err != nil {
			return fmt.Errorf("failed to seed lexicon: %w", err)
		}
		c.Logger.Info("lexicon seeded", "inserted", n)
	}

	c.lexiconCache = cache.New(cache.Options{
		DefaultExpiration: cfg.Moderation.LexiconCacheTTL,
		CleanupInterval:   cfg.Cache.PurgeWindow,
		MaxItems:          cfg.Cache.MaxSize,
	})
	c.Lexicon = moderation.NewCachedLexicon(moderation.NewDBLexicon(c.DB), c.lexiconCache, cfg.Moderation.LexiconCacheTTL)

	log := c.Logger
	opts := []moderation.GateOption{moderation.WithClassifierTimeout(cfg.Moderation.ClassifierTimeout)}
	if cfg.Moderation.ClassifierEnabled {
		key := c.Secrets.GetSecretWithDefault(ctx, SecretClassifierKey, "")
		if key == "" {
			log.Warn("classifier enabled without an API key, running lexicon only")
		} else {
			classifier, err := moderation.NewOpenAIClassifier(moderation.OpenAIClassifierConfig{
				URL:     cfg.Moderation.ClassifierURL,
				Model:   cfg.Moderation.ClassifierModel,
				APIKey:  key,
				Timeout: cfg.Moderation.ClassifierTimeout,
				OnBreakerChange: func(_, to resilience.CircuitBreakerState) {
					c.Metrics.BreakerTransition(context.Background(), "classifier", string(to))
				},
			}, log.WithComponent("moderation"))
			if err != nil {
				return fmt.Errorf("failed to create classifier: %w", err)
			}
			c.classifier = classifier
			opts = append(opts, moderation.WithClassifier(classifier))
		}
	}
	c.Gate = moderation.NewGate(c.Lexicon, log, opts...)
	log.Info("moderation gate ready", "classifier", c.Gate.ClassifierEnabled())
	return nil
}

func (c *Container) buildAlerts(ctx context.Context) error {
	cfg := c.Config
	log := c.Logger

	var notifier alerting.Notifier = alerting.NewLogNotifier(log)
	if cfg.Alerting.Enabled {
		email, err := alerting.NewEmailAPINotifier(alerting.EmailAPIConfig{
			URL:     cfg.Alerting.APIURL,
			APIKey:  c.Secrets.GetSecretWithDefault(ctx, SecretAlertsKey, ""),
			From:    cfg.Alerting.From,
			To:      cfg.Alerting.To,
			Timeout: cfg.Alerting.Timeout,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to create alert notifier: %w", err)
		}
		notifier = email
	}
	c.Alerts = alerting.NewDispatcher(notifier, c.Store, cfg.Alerting.Timeout, log)
	return nil
}

func (c *Container) buildHealth() {
	c.Health = health.NewChecker(c.Logger, 30*time.Second)
	c.Health.RegisterDatabaseCheck(func() error {
		return config.TestConnection(c.DB)
	})
	c.Health.RegisterCheck("lexicon", func() (health.Status, string, error) {
		entries, err := c.Lexicon.ActiveEntries(context.Background())
		if err != nil {
			return health.StatusDegraded, "Lexicon unavailable, messages pass unchecked", err
		}
		return health.StatusUp, fmt.Sprintf("%d active terms", len(entries)), nil
	})
	c.Health.RegisterCheck("classifier", func() (health.Status, string, error) {
		switch {
		case c.classifier == nil:
			return health.StatusDegraded, "Classifier disabled", nil
		case c.classifier.BreakerState() == resilience.StateOpen:
			return health.StatusDegraded, "Classifier circuit open, lexicon only", nil
		}
		return health.StatusUp, "Classifier reachable", nil
	})
	if c.Redis != nil {
		c.Health.RegisterCheck("redis", func() (health.Status, string, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := c.Redis.Ping(ctx); err != nil {
				return health.StatusDegraded, "Directory cache unreachable", err
			}
			return health.StatusUp, "Directory cache reachable", nil
		})
	}
}

// Close releases background resources. In-flight alerts are awaited.
func (c *Container) Close(ctx context.Context) {
	c.Hub.Close()
	c.Alerts.Close()
	c.Health.Stop()
	c.lexiconCache.Close()
	c.vault.Close()
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("failed to close redis client", "error", err.Error())
		}
	}
	if err := c.meterProvider.Shutdown(ctx); err != nil {
		c.Logger.Warn("failed to shut down meter provider", "error", err.Error())
	}
}
