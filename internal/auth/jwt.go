package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// MinSecretLength is the minimum accepted HMAC secret length in bytes
const MinSecretLength = 32

var (
	ErrSecretTooShort = errors.New("jwt secret too short")
	ErrInvalidToken   = errors.New("invalid token")
)

// JWTClaims represents the session token claims.
// The registered ID claim (jti) identifies the persisted login session.
type JWTClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Signer issues and validates HS256 session tokens.
// The secret is fixed at construction and never mutated.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a signer for the given secret
func NewSigner(secret string) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrSecretTooShort, MinSecretLength, len(secret))
	}
	return &Signer{secret: []byte(secret), now: time.Now}, nil
}

// Issue creates a signed token for a user valid for ttl
func (s *Signer) Issue(userID string, role Role, ttl time.Duration) (string, *JWTClaims, error) {
	now := s.now()
	claims := &JWTClaims{
		UserID: userID,
		Role:   role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, claims, nil
}

// Validate parses a token and returns its claims
func (s *Signer) Validate(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.ID == "" || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
