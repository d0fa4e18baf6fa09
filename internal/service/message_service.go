package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/Baaaki/parley/internal/models"
	"github.com/Baaaki/parley/internal/repository"
	"github.com/Baaaki/parley/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notifier receives a "message created" fact after every successful append.
// Implementations must not block the sender.
type Notifier interface {
	MessageCreated(msg *models.Message)
}

type MessageLimits struct {
	PageDefault int
	PageMax     int
	TextMax     int // runes
}

var DefaultMessageLimits = MessageLimits{PageDefault: 50, PageMax: 200, TextMax: 5000}

type MessageService struct {
	messages      *repository.MessageRepository
	conversations *repository.ConversationRepository
	notifier      Notifier
	limits        MessageLimits
}

// NewMessageService wires the message log and directory. notifier may be nil.
func NewMessageService(
	messages *repository.MessageRepository,
	conversations *repository.ConversationRepository,
	notifier Notifier,
	limits MessageLimits,
) *MessageService {
	return &MessageService{
		messages:      messages,
		conversations: conversations,
		notifier:      notifier,
		limits:        limits,
	}
}

// Send appends text to the scoped conversation and bumps its updated_at.
// The touch and the notification are best-effort: once the append succeeds
// the message is returned even if either fails.
func (s *MessageService) Send(ctx context.Context, scope Scope, text string, hasAttachment bool) (*models.Message, error) {
	if err := s.validateText(text); err != nil {
		return nil, err
	}

	msg, err := s.messages.Append(ctx, scope.ConversationID, scope.UserID, text, hasAttachment)
	if err != nil {
		logger.Log.Error("Failed to append message",
			zap.String("conversation_id", scope.ConversationID.String()),
			zap.String("user_id", scope.UserID.String()),
			zap.Error(err),
		)
		return nil, classify(err)
	}

	if err := s.conversations.Touch(ctx, scope.ConversationID, msg.MessageTimestamp); err != nil {
		logger.Log.Warn("Failed to touch conversation",
			zap.String("conversation_id", scope.ConversationID.String()),
			zap.String("message_id", msg.MessageID.String()),
			zap.Error(err),
		)
	}

	if s.notifier != nil {
		s.notifier.MessageCreated(msg)
	}

	logger.Log.Debug("Message sent",
		zap.String("conversation_id", scope.ConversationID.String()),
		zap.String("message_id", msg.MessageID.String()),
		zap.String("user_id", scope.UserID.String()),
	)
	return msg, nil
}

// Page returns up to limit messages older than before, newest first.
// limit is clamped to the configured bounds; zero selects the default.
func (s *MessageService) Page(ctx context.Context, scope Scope, before *uuid.UUID, limit int) ([]models.Message, error) {
	msgs, err := s.messages.Page(ctx, scope.ConversationID, before, s.clamp(limit))
	if err != nil {
		return nil, classify(err)
	}
	return msgs, nil
}

// Edit replaces the text of a message the caller authored.
func (s *MessageService) Edit(ctx context.Context, scope Scope, messageID uuid.UUID, text string) (*models.Message, error) {
	if err := s.validateText(text); err != nil {
		return nil, err
	}
	if err := s.requireAuthor(ctx, scope, messageID); err != nil {
		return nil, err
	}

	msg, err := s.messages.Edit(ctx, scope.ConversationID, messageID, text)
	if err != nil {
		return nil, classify(err)
	}
	return msg, nil
}

// Delete soft-deletes a message the caller authored.
func (s *MessageService) Delete(ctx context.Context, scope Scope, messageID uuid.UUID) (*models.Message, error) {
	if err := s.requireAuthor(ctx, scope, messageID); err != nil {
		return nil, err
	}

	msg, err := s.messages.SoftDelete(ctx, scope.ConversationID, messageID)
	if err != nil {
		return nil, classify(err)
	}
	return msg, nil
}

// MarkRead marks each id read and returns the ids that are now read.
// A failure on one id is logged and does not stop the others; an error is
// returned only when no id could be marked.
func (s *MessageService) MarkRead(ctx context.Context, scope Scope, messageIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(messageIDs) == 0 {
		return nil, validationError("message_ids must not be empty")
	}

	marked := make([]uuid.UUID, 0, len(messageIDs))
	var lastErr error
	for _, id := range messageIDs {
		if _, err := s.messages.MarkRead(ctx, scope.ConversationID, id); err != nil {
			logger.Log.Warn("Failed to mark message read",
				zap.String("conversation_id", scope.ConversationID.String()),
				zap.String("message_id", id.String()),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		marked = append(marked, id)
	}

	if len(marked) == 0 && lastErr != nil {
		return nil, classify(lastErr)
	}
	return marked, nil
}

// Pin is open to every participant.
func (s *MessageService) Pin(ctx context.Context, scope Scope, messageID uuid.UUID) (*models.Message, error) {
	msg, err := s.messages.Pin(ctx, scope.ConversationID, messageID, scope.UserID)
	if err != nil {
		return nil, classify(err)
	}
	return msg, nil
}

func (s *MessageService) Unpin(ctx context.Context, scope Scope, messageID uuid.UUID) (*models.Message, error) {
	msg, err := s.messages.Unpin(ctx, scope.ConversationID, messageID)
	if err != nil {
		return nil, classify(err)
	}
	return msg, nil
}

func (s *MessageService) Pinned(ctx context.Context, scope Scope, limit int) ([]models.Message, error) {
	msgs, err := s.messages.Pinned(ctx, scope.ConversationID, s.clamp(limit))
	if err != nil {
		return nil, classify(err)
	}
	return msgs, nil
}

// requireAuthor re-reads the message and compares its sender to the caller.
func (s *MessageService) requireAuthor(ctx context.Context, scope Scope, messageID uuid.UUID) error {
	msg, err := s.messages.Get(ctx, scope.ConversationID, messageID)
	if err != nil {
		return classify(err)
	}
	if msg.SenderID != scope.UserID {
		logger.Log.Warn("Rejected mutation by non-author",
			zap.String("conversation_id", scope.ConversationID.String()),
			zap.String("message_id", messageID.String()),
			zap.String("user_id", scope.UserID.String()),
		)
		return ErrAuthorization
	}
	return nil
}

func (s *MessageService) validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return validationError("text must not be empty")
	}
	if s.limits.TextMax > 0 && utf8.RuneCountInString(text) > s.limits.TextMax {
		return validationError("text exceeds %d characters", s.limits.TextMax)
	}
	return nil
}

func (s *MessageService) clamp(limit int) int {
	if limit <= 0 {
		return s.limits.PageDefault
	}
	if limit > s.limits.PageMax {
		return s.limits.PageMax
	}
	return limit
}
