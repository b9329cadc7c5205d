package devbackend_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fw-platform/wish-console/apiclient"
	"github.com/fw-platform/wish-console/internal/config"
	"github.com/fw-platform/wish-console/internal/devbackend"
	werrors "github.com/fw-platform/wish-console/internal/errors"
	"github.com/fw-platform/wish-console/internal/utils"
	"github.com/fw-platform/wish-console/session"
	"github.com/fw-platform/wish-console/users"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail   = "admin@example.com"
	userEmail    = "user@example.com"
	seedPassword = "change-me-now"
)

// testConfig pins the values the environment would otherwise supply
type testConfig struct {
	config.DevBackend
}

func (testConfig) GetEnv() string                    { return "TEST" }
func (testConfig) GetJWTSecret() string              { return "test-secret" }
func (testConfig) GetAccessTokenTTL() time.Duration  { return 15 * time.Minute }
func (testConfig) GetRefreshTokenTTL() time.Duration { return time.Hour }
func (testConfig) GetRefreshTokenLength() int        { return 16 }
func (testConfig) GetSeedAdminEmail() string         { return adminEmail }
func (testConfig) GetSeedUserEmail() string          { return userEmail }
func (testConfig) GetSeedPassword() string           { return seedPassword }
func (testConfig) GetRateLimit() int                 { return 0 }

// clock is a settable time source
type clock struct {
	lock sync.Mutex
	now  time.Time
}

func (c *clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

// bearer adds a fixed access token to every request
type bearer string

func (b bearer) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+string(b))
	return http.DefaultTransport.RoundTrip(req)
}

type testFixture struct {
	backend *devbackend.Server
	server  *httptest.Server
	client  *apiclient.Client
	clock   *clock
}

func setupTestFixture(t *testing.T, options ...devbackend.Option) *testFixture {
	t.Helper()

	c := &clock{now: time.Now()}
	options = append([]devbackend.Option{devbackend.WithNowTime(c.Now)}, options...)
	backend, err := devbackend.New(testConfig{}, options...)
	require.NoError(t, err)

	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	return &testFixture{
		backend: backend,
		server:  srv,
		client:  apiclient.New(srv.URL + devbackend.APIPrefix),
		clock:   c,
	}
}

// as returns a client that sends accessToken on authenticated endpoints
func (f *testFixture) as(accessToken string) *apiclient.Client {
	c := apiclient.New(f.server.URL + devbackend.APIPrefix)
	c.Authenticate(bearer(accessToken))
	return c
}

func (f *testFixture) login(t *testing.T, email string) *session.TokenResponse {
	t.Helper()
	tr, err := f.client.Login(context.Background(), apiclient.LoginRequest{Email: email, Password: seedPassword})
	require.NoError(t, err)
	return tr
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := devbackend.New(nil)
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)

	tr := f.login(t, adminEmail)
	require.Equal(t, "ADMIN", tr.Role)
	require.Equal(t, 900.0, tr.ExpiresIn)
	require.Len(t, tr.RefreshToken, 32)

	info, err := session.Inspect(tr.AccessToken)
	require.NoError(t, err)
	require.Equal(t, adminEmail, info.Email)
	require.Equal(t, "ADMIN", info.Role)
	require.Equal(t, "1", info.Subject)
	require.False(t, info.Expired(f.clock.Now()))

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.client.Login(context.Background(), apiclient.LoginRequest{Email: adminEmail, Password: "nope"})
		require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))
	})

	t.Run("email is case insensitive", func(t *testing.T) {
		_, err := f.client.Login(context.Background(), apiclient.LoginRequest{Email: "Admin@Example.com", Password: seedPassword})
		require.NoError(t, err)
	})

	t.Run("inactive account", func(t *testing.T) {
		_, err := f.backend.Accounts().Add(users.AppUser{Email: "gone@example.com", Active: utils.Ptr(false)}, seedPassword)
		require.NoError(t, err)

		_, err = f.client.Login(context.Background(), apiclient.LoginRequest{Email: "gone@example.com", Password: seedPassword})
		require.Equal(t, http.StatusForbidden, apiclient.StatusCode(err))
	})
}

func TestRefreshRotates(t *testing.T) {
	f := setupTestFixture(t)
	first := f.login(t, userEmail)

	second, err := f.client.Refresh(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, "USER", second.Role)

	_, err = f.client.Refresh(context.Background(), first.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err), "refresh tokens are single use")

	f.clock.Advance(2 * time.Hour)
	_, err = f.client.Refresh(context.Background(), second.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err), "refresh token expired")
}

func TestAccessTokenExpiry(t *testing.T) {
	f := setupTestFixture(t)
	tr := f.login(t, userEmail)

	me, err := f.as(tr.AccessToken).Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, userEmail, me.Email)
	require.NotNil(t, me.Active, "seeded accounts report their active flag")
	require.True(t, *me.Active)

	f.clock.Advance(16 * time.Minute)
	_, err = f.as(tr.AccessToken).Me(context.Background())
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))
}

func TestRequireAuth(t *testing.T) {
	f := setupTestFixture(t)

	for name, header := range map[string]string{
		"missing":   "",
		"malformed": "Token abc",
		"empty":     "Bearer ",
		"garbage":   "Bearer not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, f.server.URL+"/api/users/me", nil)
			require.NoError(t, err)
			if header != "" {
				req.Header.Set("Authorization", header)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			require.Equal(t, "unauthorized", body["error"])
		})
	}
}

func TestOTP(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.client.SendOTP(ctx, apiclient.OTPRequest{Email: userEmail}))
	code := f.backend.Outbox().OTP(userEmail)
	require.Len(t, code, 6)

	_, err := f.client.VerifyOTP(ctx, apiclient.OTPVerifyRequest{Email: userEmail, OTP: "000000x"})
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))

	tr, err := f.client.VerifyOTP(ctx, apiclient.OTPVerifyRequest{Email: userEmail, OTP: code})
	require.NoError(t, err)
	require.Equal(t, "USER", tr.Role)

	_, err = f.client.VerifyOTP(ctx, apiclient.OTPVerifyRequest{Email: userEmail, OTP: code})
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err), "codes are single use")

	t.Run("unknown account looks the same", func(t *testing.T) {
		require.NoError(t, f.client.SendOTP(ctx, apiclient.OTPRequest{Email: "nobody@example.com"}))
		require.Empty(t, f.backend.Outbox().OTP("nobody@example.com"))
	})

	t.Run("expired code", func(t *testing.T) {
		require.NoError(t, f.client.SendOTP(ctx, apiclient.OTPRequest{Email: adminEmail}))
		code := f.backend.Outbox().OTP(adminEmail)

		f.clock.Advance(15 * time.Minute)
		_, err := f.client.VerifyOTP(ctx, apiclient.OTPVerifyRequest{Email: adminEmail, OTP: code})
		require.Equal(t, http.StatusUnauthorized, apiclient.StatusCode(err))
	})
}

func TestPasswordReset(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	require.NoError(t, f.client.ForgotPassword(ctx, apiclient.ForgotPasswordRequest{Email: userEmail}))
	token := f.backend.Outbox().ResetToken(userEmail)
	require.NotEmpty(t, token)

	err := f.client.ConfirmPasswordReset(ctx, apiclient.PasswordResetConfirmRequest{Email: userEmail, Token: token, NewPassword: "short"})
	require.Equal(t, http.StatusBadRequest, apiclient.StatusCode(err))

	err = f.client.ConfirmPasswordReset(ctx, apiclient.PasswordResetConfirmRequest{Email: userEmail, Token: "wrong", NewPassword: "brand-new-password"})
	require.Equal(t, http.StatusBadRequest, apiclient.StatusCode(err))

	err = f.client.ConfirmPasswordReset(ctx, apiclient.PasswordResetConfirmRequest{Email: userEmail, Token: token, NewPassword: "brand-new-password"})
	require.NoError(t, err)

	_, err = f.client.Login(ctx, apiclient.LoginRequest{Email: userEmail, Password: "brand-new-password"})
	require.NoError(t, err)
	_, err = f.client.Login(ctx, apiclient.LoginRequest{Email: userEmail, Password: seedPassword})
	require.Error(t, err)

	t.Run("expired link", func(t *testing.T) {
		require.NoError(t, f.client.ForgotPassword(ctx, apiclient.ForgotPasswordRequest{Email: adminEmail}))
		token := f.backend.Outbox().ResetToken(adminEmail)

		f.clock.Advance(2 * time.Hour)
		err := f.client.ConfirmPasswordReset(ctx, apiclient.PasswordResetConfirmRequest{Email: adminEmail, Token: token, NewPassword: "brand-new-password"})
		require.Equal(t, http.StatusBadRequest, apiclient.StatusCode(err))
	})
}

func TestChangePassword(t *testing.T) {
	f := setupTestFixture(t)
	tr := f.login(t, userEmail)
	client := f.as(tr.AccessToken)

	err := client.ChangePassword(context.Background(), apiclient.ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "another-password"})
	require.Equal(t, http.StatusBadRequest, apiclient.StatusCode(err))

	err = client.ChangePassword(context.Background(), apiclient.ChangePasswordRequest{CurrentPassword: seedPassword, NewPassword: "another-password"})
	require.NoError(t, err)

	_, err = f.client.Login(context.Background(), apiclient.LoginRequest{Email: userEmail, Password: "another-password"})
	require.NoError(t, err)
}

func TestImpersonation(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	admin := f.login(t, adminEmail)
	user := f.login(t, userEmail)

	t.Run("users cannot impersonate", func(t *testing.T) {
		_, err := f.as(user.AccessToken).LoginAsUser(ctx, 1)
		require.Equal(t, http.StatusForbidden, apiclient.StatusCode(err))
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.as(admin.AccessToken).LoginAsUser(ctx, 999)
		require.Equal(t, http.StatusNotFound, apiclient.StatusCode(err))
	})

	imp, err := f.as(admin.AccessToken).LoginAsUser(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "USER", imp.Role)

	info, err := session.Inspect(imp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, userEmail, info.Email)

	t.Run("impersonation survives refresh", func(t *testing.T) {
		refreshed, err := f.client.Refresh(ctx, imp.RefreshToken)
		require.NoError(t, err)

		back, err := f.as(refreshed.AccessToken).SwitchBack(ctx)
		require.NoError(t, err)
		require.Equal(t, "ADMIN", back.Role)
	})

	t.Run("switch back with the admin token", func(t *testing.T) {
		back, err := f.as(admin.AccessToken).SwitchBack(ctx)
		require.NoError(t, err)
		require.Equal(t, "ADMIN", back.Role)
	})

	t.Run("plain user cannot switch back", func(t *testing.T) {
		_, err := f.as(user.AccessToken).SwitchBack(ctx)
		require.Equal(t, http.StatusForbidden, apiclient.StatusCode(err))
	})
}

func TestRateLimit(t *testing.T) {
	f := setupTestFixture(t, devbackend.WithRateLimit(2, time.Minute))

	for i := 0; i < 2; i++ {
		f.login(t, userEmail)
	}
	_, err := f.client.Login(context.Background(), apiclient.LoginRequest{Email: userEmail, Password: seedPassword})
	require.Equal(t, http.StatusTooManyRequests, apiclient.StatusCode(err))

	tr, err := f.client.Refresh(context.Background(), "anything")
	require.Nil(t, tr)
	require.Equal(t, http.StatusTooManyRequests, apiclient.StatusCode(err), "the limit covers every public auth route")
}

func TestBadRequestsAndUnknownRoutes(t *testing.T) {
	f := setupTestFixture(t)

	resp, err := http.Post(f.server.URL+"/api/auth/login", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(f.server.URL + "/api/nothing-here")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAccounts(t *testing.T) {
	accounts := devbackend.NewAccounts("test")

	u, err := accounts.Add(users.AppUser{Email: " Jane@Example.com ", Role: "weird"}, "pw-12345678")
	require.NoError(t, err)
	require.Equal(t, int64(1), u.ID)
	require.Equal(t, "jane@example.com", u.Email)
	require.Equal(t, users.RoleUser, u.Role)

	_, err = accounts.Add(users.AppUser{Email: "jane@example.com"}, "x")
	require.ErrorIs(t, err, devbackend.ErrAccountExists)

	_, err = accounts.ByID(99)
	require.ErrorIs(t, err, werrors.ErrNotFound)

	_, err = accounts.Authenticate("jane@example.com", "wrong")
	require.ErrorIs(t, err, devbackend.ErrInvalidCredentials)
}
