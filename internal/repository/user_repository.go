package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Baaaki/parley/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetUserByEmail returns nil, nil when no user matches.
// GORM automatically excludes soft-deleted users.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email = ?", email)
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getBy(ctx, "username = ?", username)
}

func (r *UserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getBy(ctx, "id = ?", id)
}

// SetStatus records online/offline presence and the last activity time.
func (r *UserRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.Status) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"last_active": now,
		}).Error
}

func (r *UserRepository) getBy(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}
