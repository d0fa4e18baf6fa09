package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/Baaaki/parley/internal/models"
	"github.com/Baaaki/parley/internal/utils"
	"gorm.io/gorm"
)

// CreateTestUser inserts a user with a placeholder password hash.
func CreateTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username:     username,
		Email:        fmt.Sprintf("%s@example.com", username),
		PasswordHash: "not-a-real-hash",
		Role:         models.RoleUser,
		Status:       models.StatusOffline,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user %s: %v", username, err)
	}
	return user
}

// CreateTestUserWithPassword inserts a user whose password verifies.
func CreateTestUserWithPassword(t *testing.T, db *gorm.DB, username, password string) *models.User {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{
		Username:     username,
		Email:        fmt.Sprintf("%s@example.com", username),
		PasswordHash: hash,
		Role:         models.RoleUser,
		Status:       models.StatusOffline,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user %s: %v", username, err)
	}
	return user
}

// CreateTestGroup inserts a group conversation whose participants are exactly members.
func CreateTestGroup(t *testing.T, db *gorm.DB, name string, members ...*models.User) *models.Conversation {
	t.Helper()

	users := make([]models.User, 0, len(members))
	for _, m := range members {
		users = append(users, *m)
	}
	conv := &models.Conversation{
		Name:         name,
		IsGroup:      true,
		Participants: users,
	}
	if err := db.WithContext(context.Background()).Omit("Participants.*").Create(conv).Error; err != nil {
		t.Fatalf("Failed to create test group %s: %v", name, err)
	}
	return conv
}
