package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const dbConnectRetries = 5

// DSN builds the postgres connection string
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
		int(c.Database.Timeout.Seconds()),
	)
}

// Dialector returns the gorm dialector for the configured store driver
func (c *Config) Dialector() (gorm.Dialector, error) {
	switch c.Store.Driver {
	case StoreDriverPostgres, "":
		return postgres.Open(c.DSN()), nil
	case StoreDriverSQLite:
		return sqlite.Open(c.Store.SQLitePath + "?_busy_timeout=5000&_foreign_keys=on"), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
}

// NewDB opens the database, retrying with exponential backoff while it
// comes up
func NewDB(cfg *Config, log *slog.Logger) (*gorm.DB, error) {
	dialector, err := cfg.Dialector()
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{}
	if cfg.IsDevelopment() {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	} else {
		gormConfig.Logger = logger.Default.LogMode(logger.Error)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Second
	policy.MaxInterval = 10 * time.Second

	var db *gorm.DB
	attempt := 0
	err = backoff.RetryNotify(func() error {
		attempt++
		var openErr error
		db, openErr = gorm.Open(dialector, gormConfig)
		return openErr
	}, backoff.WithMaxRetries(policy, dbConnectRetries-1), func(err error, delay time.Duration) {
		log.Warn("failed to connect to database, retrying",
			"attempt", attempt,
			"delay", delay.String(),
			"error", err.Error(),
		)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempt, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}

	if cfg.Store.Driver == StoreDriverSQLite {
		// sqlite serialises writers; one connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	return db, nil
}

// TestConnection checks if the database connection is working
func TestConnection(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}
