package models

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DirectKeySeparator joins the two sorted participant ids of a direct conversation.
const DirectKeySeparator = ":"

// Conversation is the directory row for a chat. Exactly one of IsGroup/IsDirect is set.
//
// DirectParticipants is NULL for groups so the unique index only constrains
// direct conversations (NULLs never collide on postgres or sqlite).
type Conversation struct {
	ID                 uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name               string    `gorm:"type:varchar(255)" json:"name"`
	IsGroup            bool      `gorm:"not null;default:false" json:"is_group"`
	IsDirect           bool      `gorm:"not null;default:false" json:"is_direct"`
	DirectParticipants *string   `gorm:"type:varchar(100);uniqueIndex:idx_conversations_direct" json:"-"`
	Participants       []User    `gorm:"many2many:conversation_participants;" json:"participants,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `gorm:"index" json:"updated_at"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// DirectKey returns the canonical participant key, or "" for groups.
func (c *Conversation) DirectKey() string {
	if c.DirectParticipants == nil {
		return ""
	}
	return *c.DirectParticipants
}

// CanonicalDirectKey builds the uniqueness key for an unordered pair of users.
func CanonicalDirectKey(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return strings.Join(ids, DirectKeySeparator)
}
