// Package auth provides the authentication boundary: signature-challenge
// issuance, the proof-verifier oracle interface, and the JWT tokens that
// authenticated identities present to the HTTP API and the realtime hub.
//
// Wallet signature cryptography itself lives behind the Verifier interface;
// this package only owns the surrounding protocol (challenge freshness,
// replay rejection, token lifecycle).
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for malformed, forged, or expired tokens.
	ErrInvalidToken = errors.New("auth: invalid or expired token")

	// ErrInvalidProof is returned when the wallet proof fails verification.
	ErrInvalidProof = errors.New("auth: invalid proof")

	// ErrChallengeUnknown is returned when a proof references a challenge
	// that was never issued, already used, or expired. Single-use by
	// construction: consuming a challenge removes it.
	ErrChallengeUnknown = errors.New("auth: unknown or expired challenge")
)

// Verifier is the external identity oracle: it turns a raw auth payload
// into an authenticated identity. Possibly slow, possibly failing; callers
// never invoke it while holding registry state.
type Verifier interface {
	VerifyProof(ctx context.Context, raw json.RawMessage) (string, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, raw json.RawMessage) (string, error)

func (f VerifierFunc) VerifyProof(ctx context.Context, raw json.RawMessage) (string, error) {
	return f(ctx, raw)
}

// challengeTTL bounds how long an issued challenge stays redeemable.
const challengeTTL = 5 * time.Minute

// ChallengeIssuer hands out fresh unpredictable challenge payloads and
// enforces single use: a payload can be consumed exactly once, within its
// validity window.
type ChallengeIssuer struct {
	mu     sync.Mutex
	issued map[string]time.Time // payload → expiry

	now func() time.Time
}

// NewChallengeIssuer creates an issuer with the reference 5 minute window.
func NewChallengeIssuer() *ChallengeIssuer {
	return &ChallengeIssuer{
		issued: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Issue returns a fresh challenge payload: auth-<unixMillis>-<16 random bytes hex>.
func (c *ChallengeIssuer) Issue() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("auth: challenge nonce: %w", err)
	}
	now := c.now()
	payload := fmt.Sprintf("auth-%d-%s", now.UnixMilli(), hex.EncodeToString(nonce))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(now)
	c.issued[payload] = now.Add(challengeTTL)
	return payload, nil
}

// Consume redeems a challenge. Unknown, expired, and already-consumed
// payloads all fail identically, which is what makes replays harmless.
func (c *ChallengeIssuer) Consume(payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, ok := c.issued[payload]
	if !ok || c.now().After(expiry) {
		delete(c.issued, payload)
		return ErrChallengeUnknown
	}
	delete(c.issued, payload)
	return nil
}

func (c *ChallengeIssuer) pruneLocked(now time.Time) {
	for payload, expiry := range c.issued {
		if now.After(expiry) {
			delete(c.issued, payload)
		}
	}
}

// TokenManager mints and verifies the HS256 JWTs bound to an identity.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a token manager. ttl <= 0 defaults to 24h.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// Issue mints a token whose subject is the identity.
func (t *TokenManager) Issue(identity string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   identity,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify parses and validates a token, returning the bound identity.
func (t *TokenManager) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, tok.Header["alg"])
			}
			return t.secret, nil
		})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
