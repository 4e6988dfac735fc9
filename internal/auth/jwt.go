// Package auth issues and verifies admin session tokens.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/starford/pathnote/internal/apperr"
)

const issuer = "pathnote"

// Claims are the JWT claims of an admin session.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// RoleAdmin is the only role the admin panel accepts.
const RoleAdmin = "admin"

// Tokens issues and verifies HS256 admin tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens returns a token service signing with secret. Tokens expire
// after ttl.
func NewTokens(secret []byte, ttl time.Duration) *Tokens {
	return &Tokens{secret: secret, ttl: ttl, now: time.Now}
}

// Issue signs a token for subject.
func (t *Tokens) Issue(subject string) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: RoleAdmin,
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign: %w", err)
	}
	return signed, exp, nil
}

// Verify parses tokenString and returns its claims. Every failure wraps
// apperr.ErrUnauthorized.
func (t *Tokens) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	if !token.Valid || claims.Role != RoleAdmin {
		return nil, fmt.Errorf("%w: invalid token", apperr.ErrUnauthorized)
	}
	return claims, nil
}

// Credentials are the configured admin username and password.
type Credentials struct {
	Username string
	Password string
}

// ErrBadCredentials is returned by Check on a mismatch.
var ErrBadCredentials = errors.New("auth: bad credentials")

// Check compares the given username and password in constant time.
func (c Credentials) Check(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(c.Username), []byte(username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(c.Password), []byte(password)) == 1
	if !userOK || !passOK || c.Password == "" {
		return fmt.Errorf("%w: %w", apperr.ErrUnauthorized, ErrBadCredentials)
	}
	return nil
}
