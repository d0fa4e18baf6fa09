package realtime

import (
	"time"

	"github.com/Baaaki/parley/internal/models"
)

// EventType is the inbound discriminator.
type EventType string

const (
	EventMessage EventType = "message"
	EventTyping  EventType = "typing"
	EventRead    EventType = "read"
	EventEdit    EventType = "edit"
	EventDelete  EventType = "delete"
	EventPin     EventType = "pin"
	EventUnpin   EventType = "unpin"
)

func (t EventType) known() bool {
	switch t {
	case EventMessage, EventTyping, EventRead, EventEdit, EventDelete, EventPin, EventUnpin:
		return true
	}
	return false
}

// Outbound frame types.
const (
	TypeChatMessage     = "chat_message"
	TypeTypingIndicator = "typing_indicator"
	TypeReadReceipt     = "read_receipt"
	TypeEditedMessage   = "edited_message"
	TypeDeletedMessage  = "deleted_message"
	TypePinnedMessage   = "pinned_message"
	TypeUnpinnedMessage = "unpinned_message"
	TypeAck             = "ack"
	TypeError           = "error"
)

// Error frame codes.
const (
	CodeBadFrame    = "bad_frame"
	CodeUnknownType = "unknown_type"
	CodeValidation  = "validation_failed"
	CodeForbidden   = "forbidden"
	CodeNotFound    = "not_found"
	CodeUnavailable = "unavailable"
	CodeRateLimited = "rate_limited"
)

// Inbound is one client frame. A missing type means EventMessage.
type Inbound struct {
	Type          EventType `json:"type"`
	TempID        string    `json:"temp_id,omitempty"`
	Text          string    `json:"text,omitempty"`
	HasAttachment bool      `json:"has_attachment,omitempty"`
	IsTyping      bool      `json:"is_typing,omitempty"`
	MessageID     string    `json:"message_id,omitempty"`
	MessageIDs    []string  `json:"message_ids,omitempty"`
}

// Outbound is one server frame; which fields are set depends on Type.
type Outbound struct {
	Type       string       `json:"type"`
	Message    *MessageView `json:"message,omitempty"`
	UserID     string       `json:"user_id,omitempty"`
	IsTyping   *bool        `json:"is_typing,omitempty"`
	MessageID  string       `json:"message_id,omitempty"`
	MessageIDs []string     `json:"message_ids,omitempty"`
	Text       string       `json:"text,omitempty"`
	Timestamp  string       `json:"timestamp,omitempty"`

	TempID string `json:"temp_id,omitempty"`
	Status string `json:"status,omitempty"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// MessageView is the wire shape of a stored message.
type MessageView struct {
	ID            string `json:"id"`
	SenderID      string `json:"sender_id"`
	Text          string `json:"text"`
	Timestamp     string `json:"timestamp"`
	HasAttachment bool   `json:"has_attachment"`
	IsRead        bool   `json:"is_read"`
	IsEdited      bool   `json:"is_edited"`
	IsDeleted     bool   `json:"is_deleted"`
	IsPinned      bool   `json:"is_pinned"`

	ReadAt    *string `json:"read_at,omitempty"`
	EditedAt  *string `json:"edited_at,omitempty"`
	DeletedAt *string `json:"deleted_at,omitempty"`
	PinnedAt  *string `json:"pinned_at,omitempty"`
	PinnedBy  *string `json:"pinned_by,omitempty"`
}

func NewMessageView(m *models.Message) *MessageView {
	v := &MessageView{
		ID:            m.MessageID.String(),
		SenderID:      m.SenderID.String(),
		Text:          m.Text,
		Timestamp:     m.MessageTimestamp.Format(time.RFC3339Nano),
		HasAttachment: m.HasAttachment,
		IsRead:        m.IsRead,
		IsEdited:      m.IsEdited,
		IsDeleted:     m.IsDeleted,
		IsPinned:      m.IsPinned,

		ReadAt:    optionalTime(m.ReadAt),
		EditedAt:  optionalTime(m.EditedAt),
		DeletedAt: optionalTime(m.DeletedAt),
		PinnedAt:  optionalTime(m.PinnedAt),
	}
	if m.PinnedBy != nil {
		by := m.PinnedBy.String()
		v.PinnedBy = &by
	}
	return v
}

func errorFrame(code, msg, tempID string) *Outbound {
	return &Outbound{Type: TypeError, Code: code, Error: msg, TempID: tempID}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func optionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(t)
	return &s
}
