package service

import (
	"context"

	"github.com/Baaaki/parley/internal/models"
	"github.com/Baaaki/parley/internal/repository"
	"github.com/Baaaki/parley/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PresenceService keeps the online/offline flag. Failures are logged only;
// presence is never allowed to break a session.
type PresenceService struct {
	users *repository.UserRepository
}

func NewPresenceService(users *repository.UserRepository) *PresenceService {
	return &PresenceService{users: users}
}

func (s *PresenceService) Online(ctx context.Context, userID uuid.UUID) {
	s.set(ctx, userID, models.StatusOnline)
}

func (s *PresenceService) Offline(ctx context.Context, userID uuid.UUID) {
	s.set(ctx, userID, models.StatusOffline)
}

func (s *PresenceService) set(ctx context.Context, userID uuid.UUID, status models.Status) {
	if err := s.users.SetStatus(ctx, userID, status); err != nil {
		logger.Log.Warn("Failed to update presence",
			zap.String("user_id", userID.String()),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}
