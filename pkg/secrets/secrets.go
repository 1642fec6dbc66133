package secrets

import (
	"context"
)

// Well-known secret keys
const (
	KeyClassifierAPIKey = "classifier_api_key"
	KeyAlertsAPIKey     = "alerts_api_key"
	KeyJWTSecret        = "jwt_secret"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// Static is a Manager over a fixed map, used in tests and local runs.
type Static map[string]string

// GetSecret implements Manager
func (s Static) GetSecret(_ context.Context, key string) (string, error) {
	if v, ok := s[key]; ok && v != "" {
		return v, nil
	}
	return "", ErrSecretNotFound
}

// GetSecretWithDefault implements Manager
func (s Static) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	if v, err := s.GetSecret(ctx, key); err == nil {
		return v
	}
	return defaultValue
}
