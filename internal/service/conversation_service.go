package service

import (
	"context"
	"errors"
	"strings"

	"github.com/Baaaki/parley/internal/models"
	"github.com/Baaaki/parley/internal/repository"
	"github.com/Baaaki/parley/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Scope is the authorized context of one caller in one conversation.
// It is only produced by ConversationService.Authorize and is passed by value
// to every message operation; nothing mutates it afterwards.
type Scope struct {
	ConversationID uuid.UUID
	UserID         uuid.UUID
}

// Key is the broadcast group key for the scoped conversation.
func (s Scope) Key() string {
	return GroupKey(s.ConversationID)
}

// GroupKey is the broadcast group key for a conversation.
func GroupKey(conversationID uuid.UUID) string {
	return "conversation:" + conversationID.String()
}

const maxGroupNameLength = 255

type ConversationService struct {
	conversations *repository.ConversationRepository
}

func NewConversationService(conversations *repository.ConversationRepository) *ConversationService {
	return &ConversationService{conversations: conversations}
}

// Authorize performs the membership check for userID in conversationID.
// A missing conversation yields ErrNotFound, an existing one the user is not
// part of yields ErrAuthorization.
func (s *ConversationService) Authorize(ctx context.Context, conversationID, userID uuid.UUID) (Scope, error) {
	ok, err := s.conversations.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return Scope{}, classify(err)
	}
	if ok {
		return Scope{ConversationID: conversationID, UserID: userID}, nil
	}

	if _, err := s.conversations.Get(ctx, conversationID); err != nil {
		return Scope{}, classify(err)
	}

	logger.Log.Warn("Rejected non-participant",
		zap.String("conversation_id", conversationID.String()),
		zap.String("user_id", userID.String()),
	)
	return Scope{}, ErrAuthorization
}

// StartDirect returns the caller's direct conversation with other, creating it
// on first contact.
func (s *ConversationService) StartDirect(ctx context.Context, caller, other uuid.UUID) (*models.Conversation, bool, error) {
	if caller == other {
		return nil, false, validationError("cannot start a conversation with yourself")
	}

	conv, created, err := s.conversations.CreateDirect(ctx, caller, other)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			logger.Log.Error("Failed to start direct conversation",
				zap.String("user_id", caller.String()),
				zap.String("other_id", other.String()),
				zap.Error(err),
			)
		}
		return nil, false, classify(err)
	}

	if created {
		logger.Log.Info("Direct conversation created",
			zap.String("conversation_id", conv.ID.String()),
			zap.String("user_id", caller.String()),
		)
	}
	return conv, created, nil
}

// CreateGroup creates a named group. Members that do not resolve to a user
// are skipped; the creator is always a participant.
func (s *ConversationService) CreateGroup(ctx context.Context, creator uuid.UUID, name string, members []uuid.UUID) (*models.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("group name is required")
	}
	if len(name) > maxGroupNameLength {
		return nil, validationError("group name too long")
	}
	if len(members) == 0 {
		return nil, validationError("at least one participant is required")
	}

	conv, err := s.conversations.CreateGroup(ctx, creator, name, members)
	if err != nil {
		return nil, classify(err)
	}

	logger.Log.Info("Group conversation created",
		zap.String("conversation_id", conv.ID.String()),
		zap.String("user_id", creator.String()),
		zap.Int("participants", len(conv.Participants)),
	)
	return conv, nil
}

func (s *ConversationService) List(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	convs, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, classify(err)
	}
	return convs, nil
}
