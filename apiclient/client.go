// Package apiclient is the REST client for the backend auth and profile
// endpoints consumed by the console.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/fw-platform/wish-console/session"
	"github.com/fw-platform/wish-console/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultTimeout = 30 * time.Second

// Client calls the backend. Public endpoints (login, OTP, refresh, password
// reset) go out on a plain client; everything else goes through the
// transport installed with Authenticate.
type Client struct {
	baseURL string
	base    http.RoundTripper
	timeout time.Duration
	logger  zerolog.Logger

	public *http.Client
	authed *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithTransport sets the underlying round tripper (default http.DefaultTransport)
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.base = rt
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger overrides the global zerolog logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		base:    http.DefaultTransport,
		timeout: defaultTimeout,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	c.public = &http.Client{Transport: c.base, Timeout: c.timeout}
	c.authed = c.public
	return c
}

// Base returns the round tripper public requests use, for wrapping by an auth transport
func (c *Client) Base() http.RoundTripper {
	return c.base
}

// Authenticate routes authenticated endpoints through rt
func (c *Client) Authenticate(rt http.RoundTripper) {
	c.authed = &http.Client{Transport: rt, Timeout: c.timeout}
}

// HTTPClient returns the authenticated client for calls outside this package
func (c *Client) HTTPClient() *http.Client {
	return c.authed
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*session.TokenResponse, error) {
	var tr session.TokenResponse
	if err := c.do(ctx, c.public, http.MethodPost, RouteLogin, req, &tr); err != nil {
		return nil, errors.Wrap(err, "[Client.Login]")
	}
	return &tr, nil
}

func (c *Client) SendOTP(ctx context.Context, req OTPRequest) error {
	return errors.Wrap(c.do(ctx, c.public, http.MethodPost, RouteOTPSend, req, nil), "[Client.SendOTP]")
}

func (c *Client) VerifyOTP(ctx context.Context, req OTPVerifyRequest) (*session.TokenResponse, error) {
	var tr session.TokenResponse
	if err := c.do(ctx, c.public, http.MethodPost, RouteOTPVerify, req, &tr); err != nil {
		return nil, errors.Wrap(err, "[Client.VerifyOTP]")
	}
	return &tr, nil
}

// Refresh never goes through the auth transport so a rejected refresh
// cannot trigger another refresh.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*session.TokenResponse, error) {
	var tr session.TokenResponse
	if err := c.do(ctx, c.public, http.MethodPost, RouteRefresh, RefreshRequest{RefreshToken: refreshToken}, &tr); err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh]")
	}
	return &tr, nil
}

func (c *Client) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	return errors.Wrap(c.do(ctx, c.public, http.MethodPost, RouteForgotPassword, req, nil), "[Client.ForgotPassword]")
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, req PasswordResetConfirmRequest) error {
	return errors.Wrap(c.do(ctx, c.public, http.MethodPost, RoutePasswordResetConfirm, req, nil), "[Client.ConfirmPasswordReset]")
}

func (c *Client) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	return errors.Wrap(c.do(ctx, c.authed, http.MethodPost, RouteChangePassword, req, nil), "[Client.ChangePassword]")
}

func (c *Client) LoginAsUser(ctx context.Context, userID int64) (*session.TokenResponse, error) {
	var tr session.TokenResponse
	if err := c.do(ctx, c.authed, http.MethodPost, RouteAdminLoginAsUser, LoginAsUserRequest{UserID: userID}, &tr); err != nil {
		return nil, errors.Wrap(err, "[Client.LoginAsUser]")
	}
	return &tr, nil
}

func (c *Client) SwitchBack(ctx context.Context) (*session.TokenResponse, error) {
	var tr session.TokenResponse
	if err := c.do(ctx, c.authed, http.MethodGet, RouteAdminSwitchBack, nil, &tr); err != nil {
		return nil, errors.Wrap(err, "[Client.SwitchBack]")
	}
	return &tr, nil
}

func (c *Client) Me(ctx context.Context) (*users.AppUser, error) {
	var u users.AppUser
	if err := c.do(ctx, c.authed, http.MethodGet, RouteUsersMe, nil, &u); err != nil {
		return nil, errors.Wrap(err, "[Client.Me]")
	}
	return &u, nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "json.Marshal")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "http.NewRequest")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Method: method, Path: path, StatusCode: resp.StatusCode, Message: errorMessage(data)}
		c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("Backend rejected request")
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return errors.Wrap(decodeEnvelope(data, out), "decode response")
}

// decodeEnvelope accepts T, {"data": T} and {"content": T}
func decodeEnvelope(data []byte, out any) error {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope) == 1 {
		for _, key := range []string{"data", "content"} {
			if inner, ok := envelope[key]; ok {
				return json.Unmarshal(inner, out)
			}
		}
	}
	return json.Unmarshal(data, out)
}
