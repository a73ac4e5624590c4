package auth

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks a plaintext password against a bcrypt hash
func VerifyPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

var dummyHash = sync.OnceValue(func() string {
	hash, err := HashPassword("givebridge-unknown-account")
	if err != nil {
		panic(err)
	}
	return hash
})

// VerifyMissingAccount spends the same bcrypt work as VerifyPassword for a
// login whose account does not exist. It always fails.
func VerifyMissingAccount(password string) error {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash()), []byte(password))
	return bcrypt.ErrMismatchedHashAndPassword
}
