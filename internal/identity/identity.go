// Package identity maps ids coming from the relational side of the system
// (integer or UUID user ids, route parameters, token subjects) onto the
// canonical UUID used by the message store.
//
// Normalize is applied once, at the edge (token authentication and request
// parsing). Code behind that edge only ever sees uuid.UUID.
package identity

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrEmptyID is returned when there is nothing to normalize.
var ErrEmptyID = errors.New("identity: empty id")

// Namespace is the fixed namespace for ids that are not already UUIDs.
// Changing it remaps every non-UUID user in the store.
var Namespace = uuid.NameSpaceDNS

const userPrefix = "user-"

// Normalize returns the store id for a raw external id.
//
// Anything uuid.Parse accepts (canonical, 32-hex, braced or urn:uuid: forms)
// is returned as that UUID, so every spelling maps to one store id. Anything else
// is hashed with SHA-1 under Namespace, so the same source id always maps to
// the same store id, across processes and restarts.
func Normalize(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, ErrEmptyID
	}

	if id, err := uuid.Parse(raw); err == nil {
		return id, nil
	}

	return uuid.NewSHA1(Namespace, []byte(userPrefix+raw)), nil
}

// MustNormalize is Normalize for fixtures and seed data.
func MustNormalize(raw string) uuid.UUID {
	id, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// ParseStrict parses an id that must already be canonical (conversation and
// message ids are minted by this system and never hashed).
func ParseStrict(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, ErrEmptyID
	}
	return uuid.Parse(raw)
}
