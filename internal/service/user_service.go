package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"mentorchat/backend/internal/models"
	"mentorchat/backend/pkg/jwt"
	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/shared/redis"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
)

// Directory resolves addresses and ids to registered users.
type Directory interface {
	ResolveByAddress(ctx context.Context, address string) (*models.User, error)
	ResolveByID(ctx context.Context, id uint) (*models.User, error)
}

// UserService handles user-related operations
type UserService struct {
	db       *gorm.DB
	jwt      *jwt.Service
	cache    *redis.RedisClient
	cacheTTL time.Duration
	lookups  singleflight.Group
	log      *logger.Logger
}

// UserServiceOption customises a UserService
type UserServiceOption func(*UserService)

// WithDirectoryCache caches resolved users in redis for ttl
func WithDirectoryCache(client *redis.RedisClient, ttl time.Duration) UserServiceOption {
	return func(s *UserService) {
		s.cache = client
		s.cacheTTL = ttl
	}
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB, jwtService *jwt.Service, log *logger.Logger, opts ...UserServiceOption) *UserService {
	s := &UserService{
		db:       db,
		jwt:      jwtService,
		cacheTTL: 5 * time.Minute,
		log:      log.WithComponent("users"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUser creates a new user
func (s *UserService) CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.User, string, error) {
	email := models.NormalizeEmail(req.Email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, "", err
	}
	if count > 0 {
		return nil, "", ErrUserAlreadyExists
	}

	user := models.User{
		Name:     req.Name,
		Email:    email,
		Password: req.Password,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, "", ErrUserAlreadyExists
		}
		return nil, "", err
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email, jwt.Role(user.Role))
	if err != nil {
		return nil, "", err
	}

	s.log.Info("user registered", "user_id", user.ID)
	return &user, token, nil
}

// Login authenticates a user and returns a JWT token
func (s *UserService) Login(ctx context.Context, req *models.LoginRequest) (*models.User, string, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(req.Email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if !models.CheckPasswordHash(req.Password, user.Password) {
		return nil, "", ErrInvalidCredentials
	}

	user.LastLogin = time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login", user.LastLogin).Error; err != nil {
		s.log.LogError(err, "failed to record last login", "user_id", user.ID)
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email, jwt.Role(user.Role))
	if err != nil {
		return nil, "", err
	}

	return &user, token, nil
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	return s.ResolveByID(ctx, id)
}

// ResolveByAddress looks a user up by email using the unique email index.
// It returns ErrUserNotFound when nobody has registered the address.
func (s *UserService) ResolveByAddress(ctx context.Context, address string) (*models.User, error) {
	email := models.NormalizeEmail(address)
	if email == "" {
		return nil, ErrUserNotFound
	}
	return s.resolve(ctx, "user:email:"+email, func(tx *gorm.DB, user *models.User) error {
		return tx.Where("email = ?", email).First(user).Error
	})
}

// ResolveByID looks a user up by primary key
func (s *UserService) ResolveByID(ctx context.Context, id uint) (*models.User, error) {
	if id == 0 {
		return nil, ErrUserNotFound
	}
	return s.resolve(ctx, "user:id:"+strconv.FormatUint(uint64(id), 10), func(tx *gorm.DB, user *models.User) error {
		return tx.First(user, id).Error
	})
}

func (s *UserService) resolve(ctx context.Context, key string, query func(*gorm.DB, *models.User) error) (*models.User, error) {
	if cached, ok := s.cached(ctx, key); ok {
		return cached, nil
	}

	v, err, _ := s.lookups.Do(key, func() (interface{}, error) {
		var user models.User
		if err := query(s.db.WithContext(ctx), &user); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, fmt.Errorf("resolve user: %w", err)
		}
		s.store(ctx, key, &user)
		return &user, nil
	})
	if err != nil {
		return nil, err
	}
	user := *v.(*models.User)
	return &user, nil
}

func (s *UserService) cached(ctx context.Context, key string) (*models.User, bool) {
	if s.cache == nil {
		return nil, false
	}
	var user models.User
	if err := s.cache.GetJSON(ctx, key, &user); err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.log.Warn("directory cache read failed", "key", key, "error", err.Error())
		}
		return nil, false
	}
	return &user, true
}

func (s *UserService) store(ctx context.Context, key string, user *models.User) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJSON(ctx, key, user, s.cacheTTL); err != nil {
		s.log.Warn("directory cache write failed", "key", key, "error", err.Error())
	}
}
