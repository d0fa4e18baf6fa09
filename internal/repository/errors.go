package repository

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a keyed row (message, conversation, user) is absent.
var ErrNotFound = errors.New("record not found")

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
