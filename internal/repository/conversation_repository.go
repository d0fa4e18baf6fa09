package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Baaaki/parley/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// ErrUserNotFound is returned when a direct conversation names a user that does not exist.
var ErrUserNotFound = errors.New("user not found")

// ConversationRepository is the conversation directory: identity, membership
// and direct/group classification.
type ConversationRepository struct {
	db *gorm.DB

	// creating collapses concurrent get-or-create calls for the same pair in
	// this process; the unique index covers writers in other processes.
	creating singleflight.Group
}

func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).Preload("Participants").Where("id = ?", id).Take(&conv).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}

// FindDirect looks up the direct conversation for an unordered pair.
func (r *ConversationRepository) FindDirect(ctx context.Context, a, b uuid.UUID) (*models.Conversation, error) {
	return r.findDirectByKey(r.db.WithContext(ctx), models.CanonicalDirectKey(a, b))
}

// CreateDirect returns the direct conversation for the pair, creating it if
// needed. Losing a creation race is not an error: the winner's row is
// returned. created reports whether the row was inserted during this call;
// callers collapsed into the same flight all observe the same value.
func (r *ConversationRepository) CreateDirect(ctx context.Context, a, b uuid.UUID) (conv *models.Conversation, created bool, err error) {
	key := models.CanonicalDirectKey(a, b)

	type result struct {
		conv    *models.Conversation
		created bool
	}

	v, err, _ := r.creating.Do(key, func() (interface{}, error) {
		// Collapsed callers share this flight, so one caller going away must
		// not fail the others.
		db := r.db.WithContext(context.WithoutCancel(ctx))

		existing, err := r.findDirectByKey(db, key)
		if err == nil {
			return result{conv: existing}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		var fresh *models.Conversation
		err = db.Transaction(func(tx *gorm.DB) error {
			var users []models.User
			if err := tx.Where("id IN ?", []uuid.UUID{a, b}).Find(&users).Error; err != nil {
				return err
			}
			if len(users) != 2 {
				return ErrUserNotFound
			}

			fresh = &models.Conversation{
				IsDirect:           true,
				DirectParticipants: &key,
				Participants:       users,
			}
			return tx.Omit("Participants.*").Create(fresh).Error
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Another process inserted the pair between our check and insert.
			existing, ferr := r.findDirectByKey(db, key)
			if ferr != nil {
				return nil, ferr
			}
			return result{conv: existing}, nil
		}
		if err != nil {
			return nil, err
		}
		return result{conv: fresh, created: true}, nil
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(result)
	copied := *res.conv
	return &copied, res.created, nil
}

// CreateGroup creates a group with the creator and every member id that
// resolves to a user. Unknown ids are skipped.
func (r *ConversationRepository) CreateGroup(ctx context.Context, creatorID uuid.UUID, name string, memberIDs []uuid.UUID) (*models.Conversation, error) {
	ids := make([]uuid.UUID, 0, len(memberIDs)+1)
	seen := map[uuid.UUID]bool{creatorID: true}
	ids = append(ids, creatorID)
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	var conv *models.Conversation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var users []models.User
		if err := tx.Where("id IN ?", ids).Find(&users).Error; err != nil {
			return err
		}

		creatorFound := false
		for _, u := range users {
			if u.ID == creatorID {
				creatorFound = true
				break
			}
		}
		if !creatorFound {
			return ErrUserNotFound
		}

		conv = &models.Conversation{
			Name:         name,
			IsGroup:      true,
			Participants: users,
		}
		return tx.Omit("Participants.*").Create(conv).Error
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *ConversationRepository) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("conversation_participants").
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Touch bumps updated_at so conversation lists sort by recency.
func (r *ConversationRepository) Touch(ctx context.Context, conversationID uuid.UUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		UpdateColumn("updated_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForUser returns the user's conversations, most recently active first.
func (r *ConversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.WithContext(ctx).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID).
		Preload("Participants").
		Order("conversations.updated_at DESC").
		Find(&convs).Error
	return convs, err
}

func (r *ConversationRepository) findDirectByKey(db *gorm.DB, key string) (*models.Conversation, error) {
	var conv models.Conversation
	err := db.Preload("Participants").
		Where("is_direct = ? AND direct_participants = ?", true, key).
		Take(&conv).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &conv, nil
}
