package session

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what can be read from an access token without verifying it.
// Never use it for authorization decisions; the backend remains the authority.
type TokenInfo struct {
	Subject   string
	Email     string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token carries an exp claim that has passed
func (ti TokenInfo) Expired(now time.Time) bool {
	return !ti.ExpiresAt.IsZero() && now.After(ti.ExpiresAt)
}

// Inspect parses the access token claims without verifying the signature
func Inspect(accessToken string) (TokenInfo, error) {
	if strings.TrimSpace(accessToken) == "" {
		return TokenInfo{}, errors.New("empty token")
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(accessToken, jwtlib.MapClaims{})
	if err != nil {
		return TokenInfo{}, err
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return TokenInfo{}, errors.New("error extracting claims")
	}

	info := TokenInfo{}
	info.Subject, _ = claims.GetSubject()
	info.Email, _ = claims["email"].(string)
	info.Role, _ = claims["role"].(string)
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}
