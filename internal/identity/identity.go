package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrNoSecret     = errors.New("identity secret not configured")
)

// Provider resolves a bearer token to a verified player ID.
type Provider interface {
	Verify(token string) (string, error)
}

// HMACProvider issues and verifies tokens of the form
// base64url(playerID).expiryUnix.base64url(hmac-sha256).
type HMACProvider struct {
	secret []byte
	now    func() time.Time
}

func NewHMACProvider(secret string) (*HMACProvider, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &HMACProvider{secret: []byte(secret), now: time.Now}, nil
}

// Issue mints a token for playerID valid for ttl.
func (p *HMACProvider) Issue(playerID string, ttl time.Duration) (string, error) {
	if playerID == "" {
		return "", ErrInvalidToken
	}
	payload := base64.RawURLEncoding.EncodeToString([]byte(playerID)) + "." +
		strconv.FormatInt(p.now().Add(ttl).Unix(), 10)
	return payload + "." + p.sign(payload), nil
}

func (p *HMACProvider) Verify(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}
	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(parts[2]), []byte(p.sign(payload))) {
		return "", ErrInvalidToken
	}
	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	if !p.now().Before(time.Unix(expiry, 0)) {
		return "", ErrExpiredToken
	}
	id, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil || len(id) == 0 {
		return "", ErrInvalidToken
	}
	return string(id), nil
}

func (p *HMACProvider) sign(payload string) string {
	h := hmac.New(sha256.New, p.secret)
	h.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}
