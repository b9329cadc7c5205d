package devbackend

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/fw-platform/wish-console/session"
	"github.com/fw-platform/wish-console/users"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Claims carried by access tokens. Impersonator is the admin email when the
// token was issued through login-as-user.
type Claims struct {
	Email        string `json:"email"`
	Role         string `json:"role"`
	Impersonator string `json:"imp,omitempty"`
	jwtlib.RegisteredClaims
}

type storedRefresh struct {
	email        string
	impersonator string
	iat          time.Time
}

// Issuer signs access tokens and keeps the single-use refresh tokens
type Issuer struct {
	secret        []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	refreshLength int
	now           func() time.Time

	lock      sync.Mutex
	refreshes map[string]storedRefresh
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration, refreshLength int, now func() time.Time) *Issuer {
	if refreshLength <= 0 {
		refreshLength = 32
	}
	return &Issuer{
		secret:        []byte(secret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		refreshLength: refreshLength,
		now:           now,
		refreshes:     make(map[string]storedRefresh),
	}
}

// Issue creates an access and refresh token pair for user
func (i *Issuer) Issue(user users.AppUser, impersonator string) (*session.TokenResponse, error) {
	now := i.now()
	claims := Claims{
		Email:        user.Email,
		Role:         string(user.Role),
		Impersonator: impersonator,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(i.accessTTL)),
			ID:        uuid.New().String(),
		},
	}

	access, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.Issue] sign access token")
	}

	tokenBytes := make([]byte, i.refreshLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, errors.Wrap(err, "[Issuer.Issue] generate refresh token")
	}
	refresh := hex.EncodeToString(tokenBytes)

	i.lock.Lock()
	i.refreshes[refresh] = storedRefresh{email: user.Email, impersonator: impersonator, iat: now}
	i.lock.Unlock()

	return &session.TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    i.accessTTL.Seconds(),
		Role:         string(user.Role),
	}, nil
}

// Verify checks the signature and expiry of an access token
func (i *Issuer) Verify(accessToken string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(accessToken, claims, func(*jwtlib.Token) (interface{}, error) {
		return i.secret, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithTimeFunc(i.now))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	return claims, nil
}

// Rotate consumes a refresh token. Each token can be used once.
func (i *Issuer) Rotate(refreshToken string) (storedRefresh, error) {
	i.lock.Lock()
	defer i.lock.Unlock()

	rt, ok := i.refreshes[refreshToken]
	if !ok {
		return storedRefresh{}, ErrInvalidRefreshToken
	}
	delete(i.refreshes, refreshToken)
	if i.isExpired(rt) {
		return storedRefresh{}, errors.Wrap(ErrInvalidRefreshToken, "expired")
	}
	return rt, nil
}

func (i *Issuer) isExpired(rt storedRefresh) bool {
	return i.now().Sub(rt.iat) > i.refreshTTL
}
