package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultSecret = "devJwtSecretDoNotUseInProduction"

// Service issues and validates HS256 tokens
type Service struct {
	secretKey []byte
	expiry    time.Duration
	now       func() time.Time
}

// NewService creates a new JWT service
func NewService(secretKey string, expiry time.Duration) *Service {
	if secretKey == "" {
		secretKey = defaultSecret
	}

	if expiry == 0 {
		expiry = 24 * time.Hour
	}

	return &Service{
		secretKey: []byte(secretKey),
		expiry:    expiry,
		now:       time.Now,
	}
}

// GenerateToken generates a JWT token for a user
func (s *Service) GenerateToken(userID uint, email string, role Role) (string, error) {
	if role == "" {
		role = RoleUser
	}
	now := s.now()

	claims := &JWTClaims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&JWTClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return s.secretKey, nil
		},
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
