// Package auth verifies caller-supplied bearer credentials for the streaming
// gateway. Token issuance belongs to the identity service; the pipeline only
// verifies signatures and reads claims.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCredential is returned for any credential that fails verification.
var ErrInvalidCredential = errors.New("invalid credential")

// Claims are the verified attributes of a streaming client.
type Claims struct {
	SubjectID string `json:"subject_id"`
	Tier      string `json:"tier,omitempty"`
	jwtlib.RegisteredClaims
}

// Verifier validates a bearer credential and returns its claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// JWTVerifier verifies HS256-signed tokens with a shared secret.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given shared secret.
func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret cannot be empty")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

// Verify validates the token signature and expiry and extracts claims.
func (v *JWTVerifier) Verify(_ context.Context, token string) (*Claims, error) {
	parsed, err := jwtlib.ParseWithClaims(token, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		return v.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Name}))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredential, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidCredential
	}
	if claims.SubjectID == "" {
		return nil, fmt.Errorf("%w: missing subject_id claim", ErrInvalidCredential)
	}

	return claims, nil
}

// SignToken issues a token for the given subject and tier. Used by tests and
// local tooling; production tokens come from the identity service.
func SignToken(subjectID, tier, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		SubjectID: subjectID,
		Tier:      tier,
		RegisteredClaims: jwtlib.RegisteredClaims{
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
