package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one row of a conversation partition.
//
// (ConversationID, MessageID) is the primary key; idx_messages_partition keeps
// each partition clustered newest-first so the latest page and every
// "older than X" page are prefix scans. Rows are never removed: delete is a flag.
type Message struct {
	ConversationID   uuid.UUID `gorm:"type:uuid;primaryKey;autoIncrement:false;index:idx_messages_partition,priority:1" json:"conversation_id"`
	MessageID        uuid.UUID `gorm:"type:uuid;primaryKey;autoIncrement:false;index:idx_messages_partition,priority:2,sort:desc" json:"message_id"`
	SenderID         uuid.UUID `gorm:"type:uuid;not null" json:"sender_id"`
	Text             string    `gorm:"type:text" json:"text"`
	MessageTimestamp time.Time `gorm:"not null" json:"message_timestamp"`

	IsRead bool       `gorm:"not null;default:false" json:"is_read"`
	ReadAt *time.Time `json:"read_at,omitempty"`

	IsEdited bool       `gorm:"not null;default:false" json:"is_edited"`
	EditedAt *time.Time `json:"edited_at,omitempty"`

	// Soft Delete Fields
	IsDeleted bool       `gorm:"not null;default:false" json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	IsPinned bool       `gorm:"not null;default:false" json:"is_pinned"`
	PinnedAt *time.Time `json:"pinned_at,omitempty"`
	PinnedBy *uuid.UUID `gorm:"type:uuid" json:"pinned_by,omitempty"`

	// Attachment rows live in the relational store, correlated by MessageID only.
	HasAttachment bool `gorm:"not null;default:false" json:"has_attachment"`
}

func (Message) TableName() string {
	return "conversation_messages"
}
