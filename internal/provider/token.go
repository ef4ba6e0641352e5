package provider

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tokens mints the HS256 tokens the vendor expects: user tokens carry the
// external identity in a user_id claim, server tokens authenticate this
// service itself.
type Tokens struct {
	secret []byte
}

func NewTokens(apiSecret string) *Tokens {
	return &Tokens{secret: []byte(apiSecret)}
}

// UserToken signs a client-side token for userID. ttl <= 0 produces a
// non-expiring token, which is what browser SDK sessions use.
func (t *Tokens) UserToken(userID string, now time.Time, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("user id is required for a user token")
	}
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// ServerToken signs a short-lived server-side token for API requests.
func (t *Tokens) ServerToken(now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"server": true,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}
