package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Baaaki/parley/internal/repository"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"record not found", repository.ErrNotFound, ErrNotFound},
		{"user not found", repository.ErrUserNotFound, ErrNotFound},
		{"driver error", errors.New("dial tcp: connection refused"), ErrStoreUnavailable},
		{"deadline", context.DeadlineExceeded, ErrStoreUnavailable},
		{"already classified", validationError("bad"), ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.in)
			assert.ErrorIs(t, got, tt.want)
			assert.Equal(t, tt.want, Kind(got))
		})
	}

	assert.NoError(t, classify(nil))
	assert.Nil(t, Kind(errors.New("plain")))
}
