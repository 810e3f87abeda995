package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrAppleTokenNoExpiry = errors.New("apple api token has no exp claim")

// AppleTokenInfo describes the configured App Store Server API token. The
// signature is not verified; Apple does that on every call.
type AppleTokenInfo struct {
	KeyID     string
	Issuer    string
	ExpiresAt time.Time
}

func (i AppleTokenInfo) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

func InspectAppleToken(token string) (*AppleTokenInfo, error) {
	claims := jwt.MapClaims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil, fmt.Errorf("failed to parse apple api token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("failed to read apple api token expiry: %w", err)
	}
	if exp == nil {
		return nil, ErrAppleTokenNoExpiry
	}

	info := &AppleTokenInfo{ExpiresAt: exp.Time}
	if kid, ok := parsed.Header["kid"].(string); ok {
		info.KeyID = kid
	}
	if iss, err := claims.GetIssuer(); err == nil {
		info.Issuer = iss
	}
	return info, nil
}
