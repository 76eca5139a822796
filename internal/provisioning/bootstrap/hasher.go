package bootstrap

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher turns a plaintext password into its stored form
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// BcryptHasher hashes with bcrypt at Cost, bcrypt.DefaultCost when zero
type BcryptHasher struct {
	Cost int
}

// Hash implements PasswordHasher
func (h BcryptHasher) Hash(plaintext string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare checks plaintext against a hash produced by Hash
func (h BcryptHasher) Compare(hash, plaintext string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
}
