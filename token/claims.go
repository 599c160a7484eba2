package token

import (
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	sessionerrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/internal/utils"
)

// Claims is the subset of the access token payload the client reads.
//
// Claims are decoded WITHOUT signature verification. They are a client-side UX hint
// used to time refreshes and to gate navigation; they are never a security boundary.
// The backend remains the only authority on whether a token is valid.
type Claims struct {
	Sub   string   `json:"sub,omitempty"`   // Subject - the user's unique ID
	Email string   `json:"email,omitempty"` // Email if the backend embeds it
	Role  string   `json:"role,omitempty"`  // Single role claim
	Roles []string `json:"roles,omitempty"` // Multi-role claim
	Exp   int64    `json:"exp"`             // Expiration, epoch seconds
	Iat   *int64   `json:"iat,omitempty"`   // Issued at time
}

// Decode reads the claims of an access token without verifying its signature.
func Decode(rawToken string) (*Claims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, sessionerrors.ErrMalformedToken
	}

	unverifiedToken, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sessionerrors.ErrMalformedToken, err)
	}

	claims, ok := unverifiedToken.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, sessionerrors.ErrMalformedToken
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sessionerrors.ErrMalformedToken, err)
	}
	if exp == nil {
		return nil, sessionerrors.ErrMissingExpiry
	}

	sub, _ := claims.GetSubject()
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)

	var roles []string
	if claimRoles, ok := claims["roles"].([]any); ok {
		roles = utils.Strings(claimRoles)
	}

	var iat *int64
	if issuedAt, err := claims.GetIssuedAt(); err == nil && issuedAt != nil {
		iat = utils.Ptr(issuedAt.Unix())
	}

	return &Claims{
		Sub:   sub,
		Email: email,
		Role:  role,
		Roles: roles,
		Exp:   exp.Unix(),
		Iat:   iat,
	}, nil
}

// ExpiresAt returns the expiry claim as a time
func (c *Claims) ExpiresAt() time.Time {
	return time.Unix(c.Exp, 0)
}

// remainingMillis is exp*1000 - now in milliseconds
func (c *Claims) remainingMillis(now time.Time) int64 {
	return c.Exp*1000 - now.UnixMilli()
}

// Expired is true for an absent or malformed token, or one whose exp is at or before now.
func Expired(rawToken string, now time.Time) bool {
	claims, err := Decode(rawToken)
	if err != nil {
		return true
	}
	return claims.remainingMillis(now) <= 0
}

// ExpiringSoon is true iff 0 < exp*1000 - now <= threshold.
// Absent and malformed tokens are not "expiring soon"; Expired covers them.
func ExpiringSoon(rawToken string, threshold time.Duration, now time.Time) bool {
	claims, err := Decode(rawToken)
	if err != nil {
		return false
	}
	remaining := claims.remainingMillis(now)
	return remaining > 0 && remaining <= threshold.Milliseconds()
}

// Remaining returns the time left before expiry, clamped to zero.
// It returns nil when there is no token at all; a malformed token has zero time left.
func Remaining(rawToken string, now time.Time) *time.Duration {
	if rawToken == "" {
		return nil
	}
	claims, err := Decode(rawToken)
	if err != nil {
		return utils.Ptr(time.Duration(0))
	}
	remaining := claims.remainingMillis(now)
	if remaining < 0 {
		remaining = 0
	}
	return utils.Ptr(time.Duration(remaining) * time.Millisecond)
}
