package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Baaaki/parley/internal/identity"
	"github.com/Baaaki/parley/internal/models"
	"github.com/Baaaki/parley/internal/repository"
	"github.com/Baaaki/parley/internal/utils"
	"github.com/Baaaki/parley/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmailAlreadyExists    = errors.New("email already exists")
	ErrUsernameAlreadyExists = errors.New("username already exists")
	ErrInvalidCredentials    = fmt.Errorf("%w: invalid credentials", ErrAuthentication)

	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

// AuthService issues and validates bearer tokens. It is the identity
// collaborator of the messaging core: everything downstream only sees the
// normalized user id returned by Authenticate.
type AuthService struct {
	users         *repository.UserRepository
	jwtSecret     string
	jwtExpiration time.Duration
	environment   string
}

func NewAuthService(users *repository.UserRepository, jwtSecret string, jwtExpiration time.Duration, environment string) *AuthService {
	return &AuthService{
		users:         users,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExpiration,
		environment:   environment,
	}
}

func (s *AuthService) IsProduction() bool {
	return s.environment == "production"
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.jwtExpiration
}

func (s *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, string, error) {
	start := time.Now()
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if err := validateRegisterInput(username, email, password); err != nil {
		logger.Log.Warn("Registration validation failed",
			zap.String("username", username),
			zap.Error(err),
		)
		return nil, "", err
	}

	existing, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", classify(err)
	}
	if existing != nil {
		return nil, "", ErrEmailAlreadyExists
	}

	existing, err = s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, "", classify(err)
	}
	if existing != nil {
		return nil, "", ErrUsernameAlreadyExists
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		logger.Log.Error("Failed to hash password", zap.Error(err))
		return nil, "", err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		Status:       models.StatusOffline,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		logger.Log.Error("Failed to create user",
			zap.String("username", username),
			zap.Error(err),
		)
		return nil, "", classify(err)
	}

	token, err := utils.GenerateToken(user, s.jwtSecret, s.jwtExpiration)
	if err != nil {
		return nil, "", err
	}

	logger.Log.Info("User registered",
		zap.String("user_id", user.ID.String()),
		zap.String("username", username),
		zap.Duration("duration", time.Since(start)),
	)
	return user, token, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", classify(err)
	}
	if user == nil {
		logger.Log.Warn("Login failed: unknown email", zap.String("email", email))
		return nil, "", ErrInvalidCredentials
	}

	valid, err := utils.VerifyPassword(password, user.PasswordHash)
	if err != nil || !valid {
		logger.Log.Warn("Login failed: bad password",
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		return nil, "", ErrInvalidCredentials
	}

	token, err := utils.GenerateToken(user, s.jwtSecret, s.jwtExpiration)
	if err != nil {
		return nil, "", err
	}

	logger.Log.Info("User logged in",
		zap.String("user_id", user.ID.String()),
		zap.String("username", user.Username),
	)
	return user, token, nil
}

// Authenticate validates a bearer token and returns the caller's store id.
// The token subject is normalized here, once; a subject that does not map to
// an existing user is rejected like a bad signature.
func (s *AuthService) Authenticate(ctx context.Context, token string) (uuid.UUID, error) {
	claims, err := utils.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	userID, err := identity.Normalize(claims.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return uuid.Nil, classify(err)
	}
	if user == nil {
		return uuid.Nil, fmt.Errorf("%w: unknown subject", ErrAuthentication)
	}
	return userID, nil
}

func validateRegisterInput(username, email, password string) error {
	switch {
	case len(username) < 3:
		return validationError("username must be at least 3 characters")
	case len(username) > 50:
		return validationError("username must be at most 50 characters")
	case len(email) > 100:
		return validationError("email too long")
	case !emailRegex.MatchString(email):
		return validationError("invalid email format")
	case len(password) < 8:
		return validationError("password must be at least 8 characters")
	case len(password) > 128:
		return validationError("password too long")
	}
	return nil
}
