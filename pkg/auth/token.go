package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const signingAlgorithm = "HS256"

type header struct {
	Type      string `json:"typ"`
	Algorithm string `json:"alg"`
}

type claims struct {
	Subject   string `json:"sub"`
	Issuer    string `json:"iss,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
}

// TokenService issues and verifies user tokens. It satisfies
// gate.Authenticator through Verify.
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithIssuer stamps and enforces an issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		s.issuer = issuer
	}
}

// WithTTL bounds token lifetime. Zero means tokens never expire.
func WithTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		s.ttl = ttl
	}
}

// NewTokenService creates a token service. The key should be at least 32
// bytes for HMAC-SHA256.
func NewTokenService(signingKey string, opts ...TokenOption) (*TokenService, error) {
	if signingKey == "" {
		return nil, ErrMissingSigningKey
	}
	s := &TokenService{signingKey: []byte(signingKey)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue creates a signed token for the given user.
func (s *TokenService) Issue(userID string) (string, error) {
	if userID == "" {
		return "", ErrMissingSubject
	}

	now := time.Now()
	c := claims{
		Subject:  userID,
		Issuer:   s.issuer,
		IssuedAt: now.Unix(),
	}
	if s.ttl > 0 {
		c.ExpiresAt = now.Add(s.ttl).Unix()
	}

	headerJSON, err := json.Marshal(header{Type: "JWT", Algorithm: signingAlgorithm})
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(c)
	if err != nil {
		return "", err
	}

	payload := encodeSegment(headerJSON) + "." + encodeSegment(claimsJSON)
	return payload + "." + s.sign(payload), nil
}

// Verify checks the token's signature and temporal claims and returns the
// user id it was issued for. The signature comparison is constant-time.
func (s *TokenService) Verify(ctx context.Context, token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}

	payload := parts[0] + "." + parts[1]
	if subtle.ConstantTimeCompare([]byte(parts[2]), []byte(s.sign(payload))) != 1 {
		return "", ErrInvalidSignature
	}

	headerJSON, err := decodeSegment(parts[0])
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	var h header
	if err := json.Unmarshal(headerJSON, &h); err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	// Reject tokens signed with anything else to prevent algorithm
	// confusion attacks.
	if h.Algorithm != signingAlgorithm {
		return "", ErrInvalidToken
	}

	claimsJSON, err := decodeSegment(parts[1])
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	var c claims
	if err := json.Unmarshal(claimsJSON, &c); err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}

	if c.ExpiresAt > 0 && time.Now().Unix() > c.ExpiresAt {
		return "", ErrExpiredToken
	}
	if s.issuer != "" && c.Issuer != s.issuer {
		return "", ErrInvalidToken
	}
	if c.Subject == "" {
		return "", ErrMissingSubject
	}

	return c.Subject, nil
}

func (s *TokenService) sign(payload string) string {
	h := hmac.New(sha256.New, s.signingKey)
	h.Write([]byte(payload))
	return encodeSegment(h.Sum(nil))
}

func encodeSegment(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeSegment(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
