package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// WHY BCRYPT?
// It is slow on purpose and salts every hash. A cost of 12 takes a few
// hundred milliseconds per check: unnoticeable at login, ruinous for anyone
// trying billions of guesses against a leaked table.
const (
	DefaultCost = 12

	MinPasswordLength = 8
	// MaxPasswordBytes is bcrypt's input limit. Longer input would be
	// silently truncated, so it is rejected instead.
	MaxPasswordBytes = 72
)

// ErrInvalidPassword means the password did not match the hash.
var ErrInvalidPassword = errors.New("auth: invalid password")

// PasswordService hashes and verifies passwords. The cost is a field so
// tests can use bcrypt.MinCost.
type PasswordService struct {
	cost int
}

func NewPasswordService() *PasswordService {
	return &PasswordService{cost: DefaultCost}
}

// NewPasswordServiceWithCost is for tests in other packages. Never use a low
// cost in production.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns a self-describing bcrypt hash ("$2a$12$<salt><hash>").
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil on a match and ErrInvalidPassword on a mismatch. The
// comparison is constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPassword
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
