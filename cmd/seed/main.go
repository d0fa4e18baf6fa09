package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Baaaki/parley/internal/config"
	"github.com/Baaaki/parley/internal/database"
	"github.com/Baaaki/parley/internal/models"
	"github.com/Baaaki/parley/internal/repository"
	"github.com/Baaaki/parley/internal/service"
	"github.com/Baaaki/parley/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const demoGroup = "general"

var demoUsers = []string{"alice", "bob", "carol"}

// seed creates demo users, a direct conversation between the first two and a
// group with everyone, then prints a token per user. Re-running it reuses
// what already exists.
func main() {
	cfg, err := config.Load()
	if initErr := logger.Init(true); initErr != nil {
		panic(initErr)
	}
	defer logger.Sync()
	if err != nil {
		logger.Log.Fatal("Invalid configuration", zap.Error(err))
	}

	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		password = "parley-demo-password"
	}

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg)
	if err != nil {
		logger.Log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal("Failed to run migrations", zap.Error(err))
	}

	auth := service.NewAuthService(repository.NewUserRepository(db), cfg.JWTSecret, cfg.JWTExpiry, cfg.Environment)
	conversations := service.NewConversationService(repository.NewConversationRepository(db))

	users := make([]*models.User, 0, len(demoUsers))
	tokens := make(map[string]string, len(demoUsers))
	for _, name := range demoUsers {
		email := name + "@parley.local"
		user, token, err := auth.Register(ctx, name, email, password)
		if errors.Is(err, service.ErrEmailAlreadyExists) || errors.Is(err, service.ErrUsernameAlreadyExists) {
			user, token, err = auth.Login(ctx, email, password)
		}
		if err != nil {
			logger.Log.Fatal("Failed to seed user", zap.String("username", name), zap.Error(err))
		}
		users = append(users, user)
		tokens[name] = token
	}

	direct, _, err := conversations.StartDirect(ctx, users[0].ID, users[1].ID)
	if err != nil {
		logger.Log.Fatal("Failed to seed direct conversation", zap.Error(err))
	}

	group, err := findGroup(ctx, conversations, users[0].ID)
	if err != nil {
		logger.Log.Fatal("Failed to list conversations", zap.Error(err))
	}
	if group == nil {
		members := make([]uuid.UUID, 0, len(users)-1)
		for _, u := range users[1:] {
			members = append(members, u.ID)
		}
		group, err = conversations.CreateGroup(ctx, users[0].ID, demoGroup, members)
		if err != nil {
			logger.Log.Fatal("Failed to seed group conversation", zap.Error(err))
		}
	}

	fmt.Printf("direct conversation (%s, %s): %s\n", users[0].Username, users[1].Username, direct.ID)
	fmt.Printf("group conversation %q: %s\n", demoGroup, group.ID)
	for _, u := range users {
		fmt.Printf("%-6s id=%s token=%s\n", u.Username, u.ID, tokens[u.Username])
	}
}

func findGroup(ctx context.Context, conversations *service.ConversationService, owner uuid.UUID) (*models.Conversation, error) {
	convs, err := conversations.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		if convs[i].IsGroup && convs[i].Name == demoGroup {
			return &convs[i], nil
		}
	}
	return nil, nil
}
