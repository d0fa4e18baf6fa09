package repository

import (
	"context"
	"time"

	"github.com/Baaaki/parley/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageRepository is the conversation-partitioned message log.
//
// Every operation is scoped to one conversation_id partition. Reads are
// prefix scans of idx_messages_partition (message_id DESC); mutations are
// single-row read-modify-write keyed by (conversation_id, message_id).
type MessageRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Append writes a new row with every flag cleared.
// Message ids are UUIDv7: unique, and ordered by creation within the process.
func (r *MessageRepository) Append(ctx context.Context, conversationID, senderID uuid.UUID, text string, hasAttachment bool) (*models.Message, error) {
	messageID, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID:   conversationID,
		MessageID:        messageID,
		SenderID:         senderID,
		Text:             text,
		MessageTimestamp: r.now(),
		HasAttachment:    hasAttachment,
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

// Page returns up to limit messages, newest first. With a cursor, only
// messages strictly older than before are returned.
func (r *MessageRepository) Page(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]models.Message, error) {
	messages := make([]models.Message, 0, limit)
	if limit <= 0 {
		return messages, nil
	}

	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if before != nil {
		q = q.Where("message_id < ?", *before)
	}
	err := q.Order("message_id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

// Get is the point lookup used for existence and ownership checks.
func (r *MessageRepository) Get(ctx context.Context, conversationID, messageID uuid.UUID) (*models.Message, error) {
	return r.find(r.db.WithContext(ctx), conversationID, messageID)
}

func (r *MessageRepository) MarkRead(ctx context.Context, conversationID, messageID uuid.UUID) (*models.Message, error) {
	return r.mutate(ctx, conversationID, messageID, mutation{
		applied: func(m *models.Message) bool { return m.IsRead },
		guard:   "is_read = ?",
		fields: func(now time.Time) map[string]interface{} {
			return map[string]interface{}{"is_read": true, "read_at": now}
		},
	})
}

// Edit replaces the text in place. No previous version is kept.
func (r *MessageRepository) Edit(ctx context.Context, conversationID, messageID uuid.UUID, text string) (*models.Message, error) {
	return r.mutate(ctx, conversationID, messageID, mutation{
		fields: func(now time.Time) map[string]interface{} {
			return map[string]interface{}{"text": text, "is_edited": true, "edited_at": now}
		},
	})
}

// SoftDelete flips is_deleted. The row and its text stay in the partition.
func (r *MessageRepository) SoftDelete(ctx context.Context, conversationID, messageID uuid.UUID) (*models.Message, error) {
	return r.mutate(ctx, conversationID, messageID, mutation{
		applied: func(m *models.Message) bool { return m.IsDeleted },
		guard:   "is_deleted = ?",
		fields: func(now time.Time) map[string]interface{} {
			return map[string]interface{}{"is_deleted": true, "deleted_at": now}
		},
	})
}

func (r *MessageRepository) Pin(ctx context.Context, conversationID, messageID, actorID uuid.UUID) (*models.Message, error) {
	return r.mutate(ctx, conversationID, messageID, mutation{
		applied: func(m *models.Message) bool { return m.IsPinned },
		guard:   "is_pinned = ?",
		fields: func(now time.Time) map[string]interface{} {
			return map[string]interface{}{"is_pinned": true, "pinned_at": now, "pinned_by": actorID}
		},
	})
}

func (r *MessageRepository) Unpin(ctx context.Context, conversationID, messageID uuid.UUID) (*models.Message, error) {
	return r.mutate(ctx, conversationID, messageID, mutation{
		applied: func(m *models.Message) bool { return !m.IsPinned },
		fields: func(time.Time) map[string]interface{} {
			return map[string]interface{}{"is_pinned": false, "pinned_at": nil, "pinned_by": nil}
		},
	})
}

// Pinned scans the whole partition for is_pinned rows. There is no pin index:
// pins per conversation are expected to stay small, so this is a known
// scaling limit rather than a hot path.
func (r *MessageRepository) Pinned(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	messages := make([]models.Message, 0, limit)
	if limit <= 0 {
		return messages, nil
	}
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND is_pinned = ?", conversationID, true).
		Order("message_id DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

// mutation describes one flag change.
// applied short-circuits when the row already carries the change, and guard is
// the compare-and-set predicate (bound to false) added to the UPDATE.
type mutation struct {
	applied func(*models.Message) bool
	guard   string
	fields  func(now time.Time) map[string]interface{}
}

func (r *MessageRepository) mutate(ctx context.Context, conversationID, messageID uuid.UUID, m mutation) (*models.Message, error) {
	var out *models.Message

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.find(tx, conversationID, messageID)
		if err != nil {
			return err
		}
		if m.applied != nil && m.applied(current) {
			out = current
			return nil
		}

		q := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND message_id = ?", conversationID, messageID)
		if m.guard != "" {
			q = q.Where(m.guard, false)
		}
		// Zero rows means a concurrent writer applied the same change first.
		if err := q.Updates(m.fields(r.now())).Error; err != nil {
			return err
		}

		out, err = r.find(tx, conversationID, messageID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MessageRepository) find(db *gorm.DB, conversationID, messageID uuid.UUID) (*models.Message, error) {
	var msg models.Message
	err := db.Where("conversation_id = ? AND message_id = ?", conversationID, messageID).
		Take(&msg).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &msg, nil
}
