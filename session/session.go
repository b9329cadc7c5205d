package session

import (
	"math"
	"time"

	"github.com/fw-platform/wish-console/users"
	"golang.org/x/oauth2"
)

// Session is the authenticated credential triple plus its expiry hint.
// A session is either complete or absent; partial sessions are never stored.
type Session struct {
	AccessToken  string
	RefreshToken string
	Role         users.RoleType
	ExpiresIn    float64 // Seconds until expiry; zero or negative means the expiry is unknown
}

// Complete reports whether all three token fields are set
func (s Session) Complete() bool {
	return s.AccessToken != "" && s.RefreshToken != "" && s.Role != ""
}

// Expires reports whether ExpiresIn is a usable, finite positive number
func (s Session) Expires() bool {
	return ValidExpiry(s.ExpiresIn)
}

// ExpiryDuration converts ExpiresIn into a duration. Zero when the session does not expire.
func (s Session) ExpiryDuration() time.Duration {
	if !s.Expires() {
		return 0
	}
	return time.Duration(s.ExpiresIn * float64(time.Second))
}

// OAuth2Token converts the session for use as an oauth2.TokenSource result
func (s Session) OAuth2Token(now time.Time) *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: s.RefreshToken,
	}
	if d := s.ExpiryDuration(); d > 0 {
		t.Expiry = now.Add(d)
	}
	return t.WithExtra(map[string]interface{}{"role": string(s.Role)})
}

// ValidExpiry reports whether seconds is a finite positive number
func ValidExpiry(seconds float64) bool {
	return seconds > 0 && !math.IsInf(seconds, 0) && !math.IsNaN(seconds)
}

// TokenResponse is the body returned by login, OTP verify, refresh and the
// impersonation endpoints.
type TokenResponse struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	ExpiresIn    float64 `json:"expiresIn"` // Seconds
	Role         string  `json:"role"`      // "ADMIN" or "USER"
}

// Session converts the wire response
func (tr *TokenResponse) Session() Session {
	return Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		Role:         users.ParseRole(tr.Role),
		ExpiresIn:    tr.ExpiresIn,
	}
}
