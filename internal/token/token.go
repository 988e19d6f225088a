// Package token implements the Token Authority (spec §4.1): minting and
// verification of short-lived, narrowly scoped capability tokens, grounded
// on this codebase's ancestry's JWT manager (applications/auth/manager.go).
package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Alpha-ashu/Candidate-Experience/internal/apierrors"
)

// Audience identifies a token's kind and what it may be used for.
type Audience string

const (
	AudienceUser Audience = "user" // User capability
	AudienceIST  Audience = "ist"  // Interview Session Token
	AudienceWST  Audience = "wst"  // WebSocket Token
	AudienceAIPT Audience = "aipt" // AI Proxy Token
	AudienceUPT  Audience = "upt"  // Upload Token
	AudienceACET Audience = "acet" // Anti-Cheat Emit Token
)

// MaxLifetime is the maximum permitted TTL per audience (spec §4.1 table).
var MaxLifetime = map[Audience]time.Duration{
	AudienceUser: 24 * time.Hour,
	AudienceIST:  15 * time.Minute,
	AudienceWST:  15 * time.Minute,
	AudienceAIPT: 15 * time.Minute,
	AudienceUPT:  15 * time.Minute,
	AudienceACET: 15 * time.Minute,
}

// Claims is the signed JWT payload for a capability token.
type Claims struct {
	Audience Audience `json:"aud_kind"`
	SessionID string  `json:"sid,omitempty"`
	Scopes   []string `json:"scopes"`
	// Generation pins an AIPT/UPT/ACET/WST/IST token to the session's
	// token-generation counter at mint time; a later transition out of
	// Active bumps the counter, invalidating all tokens minted before it.
	Generation int64 `json:"gen,omitempty"`
	// OneShot marks a token (UPT) that Verify rejects once Consume has
	// recorded its first successful use.
	OneShot bool `json:"one_shot,omitempty"`

	jwt.RegisteredClaims
}

// Authority mints and verifies capability tokens.
type Authority struct {
	secret []byte
	used   *usedSet
}

// New builds an Authority from a signing secret (>=32 bytes recommended).
func New(secret string) *Authority {
	return &Authority{secret: []byte(secret), used: newUsedSet()}
}

// MintOptions customizes a single Mint call.
type MintOptions struct {
	SessionID  string
	Scopes     []string
	TTL        time.Duration
	Generation int64
	OneShot    bool
	Subject    string
}

// Mint issues a signed token for the given audience.
func (a *Authority) Mint(aud Audience, opts MintOptions) (string, time.Time, string, error) {
	maxTTL, ok := MaxLifetime[aud]
	if !ok {
		return "", time.Time{}, "", fmt.Errorf("unknown audience %q", aud)
	}
	ttl := opts.TTL
	if ttl <= 0 || ttl > maxTTL {
		ttl = maxTTL
	}
	tokenID, err := randomID()
	if err != nil {
		return "", time.Time{}, "", err
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Audience:   aud,
		SessionID:  opts.SessionID,
		Scopes:     opts.Scopes,
		Generation: opts.Generation,
		OneShot:    opts.OneShot,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   opts.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "interview-platform",
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, "", err
	}
	return signed, exp, tokenID, nil
}

// VerifyOptions constrains what Verify accepts.
type VerifyOptions struct {
	Audience        Audience
	SessionID       string // required binding, if non-empty
	CurrentGeneration int64 // current session token-generation counter
}

// Verify validates a raw token string against the required audience and
// session binding, returning its claims on success.
func (a *Authority) Verify(raw string, opts VerifyOptions) (*Claims, error) {
	if raw == "" {
		return nil, apierrors.TokenMissing()
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apierrors.TokenExpired()
		}
		return nil, apierrors.TokenInvalid(err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, apierrors.TokenInvalid(errors.New("invalid claims"))
	}
	if opts.Audience != "" && claims.Audience != opts.Audience {
		return nil, apierrors.TokenWrongAudience(string(opts.Audience), string(claims.Audience))
	}
	if opts.SessionID != "" && claims.SessionID != opts.SessionID {
		return nil, apierrors.TokenWrongSession()
	}
	if claims.SessionID != "" && claims.Generation != opts.CurrentGeneration {
		return nil, apierrors.TokenExpired()
	}
	if claims.OneShot && a.used.has(claims.ID) {
		return nil, apierrors.TokenAlreadyUsed()
	}
	return claims, nil
}

// Consume marks a one-shot token id as used. Call only after the guarded
// operation has durably committed.
func (a *Authority) Consume(tokenID string) {
	a.used.add(tokenID)
}

func randomID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
