package utils

import (
	"testing"
	"time"

	"github.com/Baaaki/parley/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret        = "test-secret-key-for-jwt-testing"
	testWrongSecret   = "wrong-secret-key-for-jwt-testing"
	testTokenDuration = time.Hour
)

func createTestUser(role models.Role) *models.User {
	return &models.User{
		ID:       uuid.New(),
		Username: "testuser",
		Email:    "test@example.com",
		Role:     role,
	}
}

func TestGenerateToken_RoundTripClaims(t *testing.T) {
	for _, role := range []models.Role{models.RoleUser, models.RoleAdmin} {
		t.Run(string(role), func(t *testing.T) {
			user := createTestUser(role)

			token, err := GenerateToken(user, testSecret, testTokenDuration)
			require.NoError(t, err)

			claims, err := ValidateToken(token, testSecret)
			require.NoError(t, err)
			assert.Equal(t, user.ID.String(), claims.UserID)
			assert.Equal(t, user.ID.String(), claims.Subject)
			assert.Equal(t, "testuser", claims.Username)
			assert.Equal(t, role, claims.Role)
		})
	}
}

func TestValidateToken_Expired(t *testing.T) {
	token, err := GenerateToken(createTestUser(models.RoleUser), testSecret, -time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(token, testSecret)

	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.Nil(t, claims)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken(createTestUser(models.RoleUser), testSecret, testTokenDuration)
	require.NoError(t, err)

	_, err = ValidateToken(token, testWrongSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not-a-jwt", ErrInvalidToken},
		{"two segments", "aaa.bbb", ErrInvalidToken},
		{"bad signature", "eyJhbGciOiJIUzI1NiJ9.eyJ1c2VyX2lkIjoieCJ9.c2ln", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateToken(tt.token, testSecret)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateToken_RejectsNonHMAC(t *testing.T) {
	claims := &Claims{
		UserID: "u-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ValidateToken(unsigned, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateToken_AcceptsExternalSubject(t *testing.T) {
	// Tokens from the identity side may carry non-UUID ids; those are
	// normalized downstream, so validation must not reject them.
	claims := &Claims{
		UserID:   "42",
		Username: "legacy",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	got, err := ValidateToken(signed, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "42", got.UserID)
}

func TestValidateToken_MissingUserID(t *testing.T) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ValidateToken(signed, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
