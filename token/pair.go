package token

import (
	"golang.org/x/oauth2"
)

// Pair is the access/refresh token pair issued by login, register and refresh.
type Pair struct {
	// AccessToken is the signed JWT sent as "Authorization: Bearer <token>".
	AccessToken string `json:"accessToken"`

	// RefreshToken is an opaque string used solely to obtain a new pair.
	// The backend may rotate it on every use.
	RefreshToken string `json:"refreshToken"`
}

// Empty reports whether the pair carries no access token
func (p Pair) Empty() bool {
	return p.AccessToken == ""
}

// ToOAuth2 converts the pair to an oauth2.Token. Expiry comes from the
// unverified exp claim and is left zero when the access token cannot be decoded.
func (p Pair) ToOAuth2() *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  p.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: p.RefreshToken,
	}
	if claims, err := Decode(p.AccessToken); err == nil {
		t.Expiry = claims.ExpiresAt()
	}
	return t
}
