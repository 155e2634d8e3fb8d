package utils

import (
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// NewID returns a random UUIDv4 string for user and appointment records.
func NewID() string {
	return uuid.NewString()
}

// NewActionToken returns an unguessable token for the confirm/reject email
// links. A KSUID carries 128 random bits after its timestamp prefix.
func NewActionToken() string {
	return ksuid.New().String()
}
