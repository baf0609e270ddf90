// Package auth issues and checks session tokens, and wraps GitHub OAuth and
// bcrypt password hashing.
//
// SESSION FLOW:
//  1. The user logs in with GitHub (/auth/github/*) or a password (/auth/login)
//  2. The server issues a signed JWT and sets it as the HttpOnly "token" cookie
//  3. Browsers send the cookie back; API clients and the websocket client may
//     send "Authorization: Bearer <jwt>" instead
//  4. Middleware validates the token and puts the Identity in the context
//
// WHY JWT?
// Every instance can check a token with nothing but the secret. No session
// table, no sticky sessions, which matters once realtime fan-out runs over
// NATS across several servers.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer is checked on every token so tokens minted by other apps sharing
	// the secret by accident are refused.
	Issuer = "vinstackcode"

	MinSecretLength = 16
	DefaultTokenTTL = 24 * time.Hour
)

// Identity is who a valid token belongs to.
type Identity struct {
	UserID   string
	Username string
}

// TokenService creates and validates HS256 session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService returns a service signing with secret. A ttl of zero
// selects DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// claims carries the username next to the registered claims so the realtime
// layer can label cursors without a profile lookup.
type claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// TTL is how long issued tokens live. Handlers use it for the cookie MaxAge.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Generate signs a token for the identity with the configured TTL.
func (s *TokenService) Generate(id Identity) (string, error) {
	return s.GenerateWithDuration(id, s.ttl)
}

// GenerateWithDuration signs a token that expires after d. Tests use a
// negative d to mint expired tokens.
func (s *TokenService) GenerateWithDuration(id Identity, d time.Duration) (string, error) {
	if id.UserID == "" {
		return "", errors.New("auth: cannot sign a token without a user id")
	}
	now := time.Now()
	c := claims{
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenStr and returns its identity.
//
// ALGORITHM CONFUSION:
// jwt.WithValidMethods pins HS256. Without it a token with "alg":"none", or
// one signed with an asymmetric algorithm, could slip through.
func (s *TokenService) Validate(tokenStr string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &claims{},
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, errors.New("auth: token expired")
		}
		return Identity{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return Identity{}, errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return Identity{}, errors.New("auth: token has no subject")
	}
	return Identity{UserID: c.Subject, Username: c.Username}, nil
}
