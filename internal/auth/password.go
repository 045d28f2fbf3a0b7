package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores input past this many bytes.
const maxPasswordBytes = 72

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// BcryptHasher hashes with Cost, falling back to bcrypt.DefaultCost when
// Cost is outside bcrypt's range.
type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{Cost: bcrypt.DefaultCost}
}

func (b *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > maxPasswordBytes {
		return "", invalid("Password", fmt.Sprintf("Password must be at most %d bytes", maxPasswordBytes))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost())
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (b *BcryptHasher) Compare(hash, password string) bool {
	if hash == "" || len(password) > maxPasswordBytes {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (b *BcryptHasher) cost() int {
	if b.Cost < bcrypt.MinCost || b.Cost > bcrypt.MaxCost {
		return bcrypt.DefaultCost
	}
	return b.Cost
}
