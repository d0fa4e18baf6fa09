package database

import (
	"context"
	"fmt"
	"time"

	"github.com/Baaaki/parley/internal/config"
	"github.com/Baaaki/parley/internal/models"
	"github.com/Baaaki/parley/pkg/logger"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open builds a gorm handle with the settings every dialect shares.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		// Surface unique violations as gorm.ErrDuplicatedKey on every driver.
		TranslateError: true,
		// Timestamps are compared and ordered as stored; keep them all in UTC.
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
}

// Connect opens postgres and pings it, retrying with exponential backoff.
// The store may still be starting when the server boots, so this is the one
// place a StoreUnavailable condition is retried automatically.
func Connect(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	attempt := 0
	db, err := backoff.Retry(ctx, func() (*gorm.DB, error) {
		attempt++
		db, err := Open(postgres.Open(cfg.DatabaseURL))
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return db, nil
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(cfg.StoreConnectAttempts)),
		backoff.WithMaxElapsedTime(cfg.StoreConnectMaxWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Log.Warn("Database not ready, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("next_retry", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect database after %d attempts: %w", attempt, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	logger.Log.Info("Database connected", zap.Int("attempts", attempt))
	return db, nil
}

// Migrate creates the directory tables and the message partition table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Conversation{}, &models.Message{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Log.Info("Database migration completed")
	return nil
}
