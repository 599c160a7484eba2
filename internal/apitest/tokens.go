package apitest

import (
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-client/users"
)

const (
	issuer   = "apitest"
	audience = "console"
)

var signingKey = []byte("apitest-signing-key")

// SignAccessToken mints an HS256 access token with the given subject and expiry
func SignAccessToken(sub, email string, exp time.Time) string {
	return SignClaims(jwtlib.MapClaims{
		"sub":   sub,
		"email": email,
		"iat":   time.Now().Unix(),
		"exp":   exp.Unix(),
		"jti":   uuid.NewString(),
	})
}

// signUserToken mints the access token the backend hands out on login, register and refresh
func signUserToken(u users.User, now, exp time.Time) string {
	return SignClaims(jwtlib.MapClaims{
		"iss":   issuer,                   // Backend that issued the token
		"aud":   audience,                 // Console API audience
		"sub":   u.ID,                     // Subject - the user's unique ID
		"email": u.Email,                  // User email
		"role":  string(u.Role),           // Primary role
		"roles": []string{string(u.Role)}, // All roles
		"iat":   now.Unix(),               // Issued at time
		"exp":   exp.Unix(),               // Expiration time
		"jti":   uuid.NewString(),         // Unique token ID so rotated tokens always differ
	})
}

// SignClaims signs arbitrary claims, e.g. to build tokens without exp
func SignClaims(claims jwtlib.MapClaims) string {
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic("apitest: sign token: " + err.Error())
	}
	return signed
}
