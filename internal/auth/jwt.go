// Package auth issues and validates terminal tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmynk/tableside/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("authorization token required")
)

// JWTManager handles terminal token generation and validation.
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

// Claims identifies a terminal: the venue it serves, its own ID and its
// role on the floor.
type Claims struct {
	VenueID    string      `json:"venue_id"`
	TerminalID string      `json:"terminal_id"`
	Role       models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the actor passed to service operations.
func (c *Claims) Actor() models.Actor {
	return models.Actor{VenueID: c.VenueID, TerminalID: c.TerminalID, Role: c.Role}
}

// NewJWTManager creates a new JWT manager with the given secret and token duration.
// A zero duration issues tokens that do not expire.
func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
	}
}

// Generate creates a signed token for the given terminal.
func (m *JWTManager) Generate(actor models.Actor) (string, error) {
	if actor.VenueID == "" || actor.TerminalID == "" {
		return "", models.Invalid("actor", "venue and terminal are required")
	}
	now := time.Now()
	claims := &Claims{
		VenueID:    actor.VenueID,
		TerminalID: actor.TerminalID,
		Role:       actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.TerminalID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if m.tokenDuration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.tokenDuration))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Validate parses and validates a token, returning the claims if valid.
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			// Verify the signing method
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
	)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.VenueID == "" || claims.TerminalID == "" {
		return nil, fmt.Errorf("%w: missing venue or terminal", ErrInvalidToken)
	}

	return claims, nil
}

// ReadClaims decodes a token without checking its signature. Terminals use
// it to learn their own venue; the server always calls Validate.
func ReadClaims(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.VenueID == "" {
		return nil, fmt.Errorf("%w: missing venue", ErrInvalidToken)
	}
	return claims, nil
}
