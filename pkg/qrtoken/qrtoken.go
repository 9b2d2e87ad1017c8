// Package qrtoken signs and parses the rotating check-in tokens shown as QR
// codes during a session.
package qrtoken

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformed means the token could not be decoded.
	ErrMalformed = errors.New("malformed token")
	// ErrSignature means the token was not signed with the configured secret.
	ErrSignature = errors.New("invalid token signature")
)

// Claims is the payload embedded in a token.
type Claims struct {
	SessionID  string
	ActivityID string
	IssuedAt   time.Time
	Nonce      string
}

type wireClaims struct {
	SessionID  string `json:"sid"`
	ActivityID string `json:"aid"`
	IssuedAtMs int64  `json:"iat_ms"`
	Nonce      string `json:"n"`
}

// Signer creates and validates check-in tokens.
type Signer struct {
	secret []byte
}

// NewSigner constructs a signer with the provided secret.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("check-in token secret missing")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// NewNonce returns a random value identifying one token rotation.
func NewNonce() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Sign encodes claims as payload.signature.
func (s *Signer) Sign(claims Claims) (string, error) {
	if claims.SessionID == "" || claims.ActivityID == "" || claims.Nonce == "" {
		return "", fmt.Errorf("session, activity and nonce required")
	}
	raw, err := json.Marshal(wireClaims{
		SessionID:  claims.SessionID,
		ActivityID: claims.ActivityID,
		IssuedAtMs: claims.IssuedAt.UnixMilli(),
		Nonce:      claims.Nonce,
	})
	if err != nil {
		return "", fmt.Errorf("encode claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + s.mac(payload), nil
}

// Parse validates the signature and returns the embedded claims. Freshness is
// left to the caller since it depends on the session's current rotation.
func (s *Signer) Parse(token string) (Claims, error) {
	payload, signature, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || payload == "" || signature == "" {
		return Claims{}, ErrMalformed
	}
	if !hmac.Equal([]byte(s.mac(payload)), []byte(signature)) {
		return Claims{}, ErrSignature
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var wire wireClaims
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.SessionID == "" || wire.ActivityID == "" || wire.Nonce == "" || wire.IssuedAtMs <= 0 {
		return Claims{}, ErrMalformed
	}
	return Claims{
		SessionID:  wire.SessionID,
		ActivityID: wire.ActivityID,
		IssuedAt:   time.UnixMilli(wire.IssuedAtMs).UTC(),
		Nonce:      wire.Nonce,
	}, nil
}

func (s *Signer) mac(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
