package utils

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const passwordCost = 10

// HashPassword hashes a given password using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	return string(bytes), err
}

// CheckPasswordHash compares a plain password with its hashed version. An
// empty hash (Google-only account) never matches.
func CheckPasswordHash(password, hash string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

var dummyHash = sync.OnceValue(func() string {
	h, _ := HashPassword("clinic-api-placeholder")
	return h
})

// DummyPasswordHash is a valid bcrypt hash at the normal cost. Comparing
// against it when no account exists keeps login timing independent of
// whether the email is registered.
func DummyPasswordHash() string {
	return dummyHash()
}
