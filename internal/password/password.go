// Package password hashes and verifies note lock passwords.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/starford/pathnote/internal/apperr"
)

// Hasher turns a plaintext password into an opaque hash and checks it later.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

// Bcrypt is a Hasher backed by bcrypt.
type Bcrypt struct {
	Cost int
}

var _ Hasher = Bcrypt{}

// NewBcrypt returns a bcrypt hasher. A zero cost selects bcrypt.DefaultCost.
func NewBcrypt(cost int) Bcrypt {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return Bcrypt{Cost: cost}
}

// Hash returns the bcrypt hash of plain. Passwords longer than 72 bytes are
// rejected with apperr.ErrInvalidInput.
func (b Bcrypt) Hash(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), b.Cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password longer than 72 bytes", apperr.ErrInvalidInput)
		}
		return "", fmt.Errorf("password: hash: %w", err)
	}
	return string(h), nil
}

// Verify reports whether plain matches hash.
func (b Bcrypt) Verify(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
