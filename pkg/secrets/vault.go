package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"mentorchat/backend/pkg/cache"
	"mentorchat/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// VaultConfig holds configuration for Vault client
type VaultConfig struct {
	Address    string
	Token      string
	Namespace  string
	Mount      string
	Path       string
	Timeout    time.Duration
	MaxRetries int
	CacheTTL   time.Duration
	Enabled    bool
}

// VaultConfigFromEnv reads the Vault settings from the environment
func VaultConfigFromEnv(enabled bool) VaultConfig {
	cfg := VaultConfig{
		Address:    os.Getenv("VAULT_ADDR"),
		Token:      os.Getenv("VAULT_TOKEN"),
		Namespace:  os.Getenv("VAULT_NAMESPACE"),
		Mount:      os.Getenv("VAULT_MOUNT"),
		Path:       os.Getenv("VAULT_SECRETS_PATH"),
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		CacheTTL:   5 * time.Minute,
		Enabled:    enabled,
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.Path == "" {
		cfg.Path = "mentorchat"
	}
	return cfg
}

// VaultManager reads secrets from a Vault KV v2 mount and falls back to
// environment variables.
type VaultManager struct {
	client *vault.Client
	config VaultConfig
	cache  *cache.Cache
	log    *logger.Logger
}

// NewVaultManager creates a new Vault manager instance. A disabled config
// yields an environment-only manager.
func NewVaultManager(config VaultConfig, log *logger.Logger) (*VaultManager, error) {
	manager := &VaultManager{
		config: config,
		cache: cache.New(cache.Options{
			DefaultExpiration: config.CacheTTL,
			CleanupInterval:   config.CacheTTL,
		}),
		log: log,
	}

	if !config.Enabled {
		return manager, nil
	}

	if config.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if config.Token == "" {
		return nil, ErrNoVaultToken
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = config.Address
	vaultConfig.Timeout = config.Timeout
	vaultConfig.MaxRetries = config.MaxRetries

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(config.Token)
	if config.Namespace != "" {
		client.SetNamespace(config.Namespace)
	}
	manager.client = client

	return manager, nil
}

// GetSecret retrieves a secret from Vault, with fallback to environment variable
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	if cached, found := m.cache.Get(key); found {
		return cached.(string), nil
	}

	if m.client == nil {
		return m.getFromEnvironment(key)
	}

	value, err := m.getFromVault(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSecretNotFound) {
			m.log.Warn("secret not found in vault, falling back to environment", "key", key)
			return m.getFromEnvironment(key)
		}
		return "", err
	}

	m.cache.Set(key, value)
	return value, nil
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func (m *VaultManager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		m.log.Warn("failed to get secret, using default value",
			"key", key,
			"error", err.Error(),
		)
		return defaultValue
	}
	return value
}

// Close releases the cache goroutine
func (m *VaultManager) Close() {
	m.cache.Close()
}

func (m *VaultManager) getFromVault(ctx context.Context, key string) (string, error) {
	secret, err := m.client.KVv2(m.config.Mount).Get(ctx, m.config.Path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", ErrSecretNotFound
		}
		m.log.Error("failed to read secret from vault",
			"mount", m.config.Mount,
			"path", m.config.Path,
			"error", err.Error(),
		)
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}

	value, ok := secret.Data[key].(string)
	if !ok {
		return "", ErrSecretNotFound
	}

	return value, nil
}

// getFromEnvironment maps "classifier.api-key" style keys to CLASSIFIER_API_KEY
func (m *VaultManager) getFromEnvironment(key string) (string, error) {
	envKey := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))

	value := os.Getenv(envKey)
	if value == "" {
		return "", ErrSecretNotFound
	}

	m.cache.Set(key, value)
	return value, nil
}
