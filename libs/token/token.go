package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrMalformedToken = errors.New("malformed token")

// Info is what the dashboard can read out of a gateway-issued bearer
// token. The gateway signs its tokens with its own secret, so the
// dashboard never verifies the signature; it only inspects registered
// claims to size storage TTLs and schedule revalidation.
type Info struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func Inspect(tokenString string) (*Info, error) {
	parser := jwt.NewParser()
	claims := jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, &claims); err != nil {
		return nil, ErrMalformedToken
	}

	info := &Info{Subject: claims.Subject}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// TTL returns how long the token is still good for, or the fallback
// when the token carries no expiry or is not a JWT at all (the gateway
// has been observed to issue opaque tokens in some environments).
func TTL(tokenString string, now time.Time, fallback time.Duration) time.Duration {
	info, err := Inspect(tokenString)
	if err != nil || info.ExpiresAt.IsZero() {
		return fallback
	}
	ttl := info.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return fallback
	}
	return ttl
}

func ExtractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
