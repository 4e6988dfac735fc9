// Package notepath validates note paths and allocates random ones.
package notepath

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pathnote/internal/apperr"
)

// MaxAttempts bounds random path allocation.
const MaxAttempts = 10

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

var pathPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// DefaultReserved are the path names owned by the application itself.
var DefaultReserved = []string{"admin", "api", "static"}

// Rules are the constraints a note path must satisfy.
type Rules struct {
	MinLength int
	MaxLength int
	Reserved  []string
}

// DefaultRules returns 1-20 characters with the default reserved names.
func DefaultRules() Rules {
	return Rules{MinLength: 1, MaxLength: 20, Reserved: DefaultReserved}
}

// IsReserved reports whether path names an application route.
// The comparison is case-insensitive.
func (r Rules) IsReserved(path string) bool {
	for _, name := range r.Reserved {
		if strings.EqualFold(name, path) {
			return true
		}
	}
	return false
}

// Validate checks path against the rules. The returned error wraps
// apperr.ErrInvalidPath.
func (r Rules) Validate(path string) error {
	err := validation.Validate(path,
		validation.Required,
		validation.Length(r.MinLength, r.MaxLength),
		validation.Match(pathPattern).Error("must contain only letters, digits, '-' and '_'"),
		validation.By(func(any) error {
			if r.IsReserved(path) {
				return errors.New("is reserved")
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidPath, err)
	}
	return nil
}

// Generate returns a random lowercase alphanumeric path whose length is
// uniform in [MinLength, MaxLength].
func (r Rules) Generate() (string, error) {
	span := r.MaxLength - r.MinLength + 1
	if r.MinLength < 1 || span < 1 {
		return "", fmt.Errorf("notepath: invalid length bounds %d-%d", r.MinLength, r.MaxLength)
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(span)))
	if err != nil {
		return "", err
	}
	length := r.MinLength + int(n.Int64())

	b := make([]byte, length)
	size := big.NewInt(int64(len(alphabet)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}

// ExistsFunc reports whether a path is already taken.
type ExistsFunc func(ctx context.Context, path string) (bool, error)

// Allocate generates paths until one is free, giving up after MaxAttempts
// with apperr.ErrPathExhausted.
func (r Rules) Allocate(ctx context.Context, exists ExistsFunc) (string, error) {
	for range MaxAttempts {
		path, err := r.Generate()
		if err != nil {
			return "", err
		}
		if r.IsReserved(path) {
			continue
		}
		taken, err := exists(ctx, path)
		if err != nil {
			return "", err
		}
		if !taken {
			return path, nil
		}
	}
	return "", apperr.ErrPathExhausted
}
