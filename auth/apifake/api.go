package apifake

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/fw-platform/wish-console/apiclient"
	"github.com/fw-platform/wish-console/auth"
	"github.com/fw-platform/wish-console/session"
	"github.com/fw-platform/wish-console/users"
)

var _ auth.API = (*API)(nil)

// Method names for Calls, Fail and Block
const (
	MethodLogin                = "Login"
	MethodSendOTP              = "SendOTP"
	MethodVerifyOTP            = "VerifyOTP"
	MethodRefresh              = "Refresh"
	MethodForgotPassword       = "ForgotPassword"
	MethodConfirmPasswordReset = "ConfirmPasswordReset"
	MethodChangePassword       = "ChangePassword"
	MethodLoginAsUser          = "LoginAsUser"
	MethodSwitchBack           = "SwitchBack"
	MethodMe                   = "Me"
)

// DefaultExpiresIn is the session lifetime the fake hands out
const DefaultExpiresIn = 900

type account struct {
	user     users.AppUser
	password string
}

// API is an in-memory backend. Tokens are opaque counters; refresh tokens
// are single use.
type API struct {
	lock      sync.Mutex
	accounts  map[string]*account // by email
	refreshes map[string]string   // refresh token to email
	otps      map[string]string   // email to pending code
	resets    map[string]string   // email to reset token
	current   string              // email of the signed-in account
	issued    int
	expiresIn float64
	omitRole  bool

	calls    map[string]int
	failures map[string]error
	gates    map[string]*Gate
}

func New() *API {
	return &API{
		accounts:  make(map[string]*account),
		refreshes: make(map[string]string),
		otps:      make(map[string]string),
		resets:    make(map[string]string),
		expiresIn: DefaultExpiresIn,
		calls:     make(map[string]int),
		failures:  make(map[string]error),
		gates:     make(map[string]*Gate),
	}
}

// AddAccount registers user with password
func (f *API) AddAccount(user users.AppUser, password string) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.accounts[user.Email] = &account{user: user, password: password}
}

// SetExpiresIn changes the expiresIn of tokens issued from now on
func (f *API) SetExpiresIn(seconds float64) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.expiresIn = seconds
}

// OmitRole makes refresh and switch-back responses leave the role out
func (f *API) OmitRole(omit bool) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.omitRole = omit
}

// Fail makes every call to method return err. A nil err clears it.
func (f *API) Fail(method string, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	if err == nil {
		delete(f.failures, method)
		return
	}
	f.failures[method] = err
}

// Block holds the next calls to method until the gate is released
func (f *API) Block(method string) *Gate {
	f.lock.Lock()
	defer f.lock.Unlock()

	g := &Gate{entered: make(chan struct{}), release: make(chan struct{})}
	f.gates[method] = g
	return g
}

// Calls returns how many times method was called
func (f *API) Calls(method string) int {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.calls[method]
}

// OTP returns the last code sent to email
func (f *API) OTP(email string) string {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.otps[email]
}

// ResetToken returns the last reset token sent to email
func (f *API) ResetToken(email string) string {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.resets[email]
}

// Password returns the current password of email
func (f *API) Password(email string) string {
	f.lock.Lock()
	defer f.lock.Unlock()

	if acc, ok := f.accounts[email]; ok {
		return acc.password
	}
	return ""
}

func (f *API) Login(ctx context.Context, req apiclient.LoginRequest) (*session.TokenResponse, error) {
	if err := f.enter(ctx, MethodLogin); err != nil {
		return nil, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()

	acc, ok := f.accounts[req.Email]
	if !ok || acc.password != req.Password {
		return nil, rejected(MethodLogin, http.StatusUnauthorized, "invalid credentials")
	}
	f.current = req.Email
	return f.issueLocked(acc, false), nil
}

func (f *API) SendOTP(ctx context.Context, req apiclient.OTPRequest) error {
	if err := f.enter(ctx, MethodSendOTP); err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()

	if _, ok := f.accounts[req.Email]; ok {
		f.otps[req.Email] = fmt.Sprintf("%06d", 100000+f.issued)
	}
	return nil
}

func (f *API) VerifyOTP(ctx context.Context, req apiclient.OTPVerifyRequest) (*session.TokenResponse, error) {
	if err := f.enter(ctx, MethodVerifyOTP); err != nil {
		return nil, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()

	code, ok := f.otps[req.Email]
	if !ok || code != req.OTP {
		return nil, rejected(MethodVerifyOTP, http.StatusUnauthorized, "invalid code")
	}
	delete(f.otps, req.Email)
	f.current = req.Email
	return f.issueLocked(f.accounts[req.Email], false), nil
}

func (f *API) Refresh(ctx context.Context, refreshToken string) (*session.TokenResponse, error) {
	if err := f.enter(ctx, MethodRefresh); err != nil {
		return nil, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()

	email, ok := f.refreshes[refreshToken]
	if !ok {
		return nil, rejected(MethodRefresh, http.StatusUnauthorized, "invalid refresh token")
	}
	delete(f.refreshes, refreshToken)
	return f.issueLocked(f.accounts[email], f.omitRole), nil
}

func (f *API) ForgotPassword(ctx context.Context, req apiclient.ForgotPasswordRequest) error {
	if err := f.enter(ctx, MethodForgotPassword); err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()

	if _, ok := f.accounts[req.Email]; ok {
		f.issued++
		f.resets[req.Email] = fmt.Sprintf("reset-%d", f.issued)
	}
	return nil
}

func (f *API) ConfirmPasswordReset(ctx context.Context, req apiclient.PasswordResetConfirmRequest) error {
	if err := f.enter(ctx, MethodConfirmPasswordReset); err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()

	token, ok := f.resets[req.Email]
	if !ok || token != req.Token {
		return rejected(MethodConfirmPasswordReset, http.StatusBadRequest, "reset link is invalid or expired")
	}
	delete(f.resets, req.Email)
	f.accounts[req.Email].password = req.NewPassword
	return nil
}

func (f *API) ChangePassword(ctx context.Context, req apiclient.ChangePasswordRequest) error {
	if err := f.enter(ctx, MethodChangePassword); err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()

	acc, ok := f.accounts[f.current]
	if !ok || acc.password != req.CurrentPassword {
		return rejected(MethodChangePassword, http.StatusBadRequest, "current password is incorrect")
	}
	acc.password = req.NewPassword
	return nil
}

func (f *API) LoginAsUser(ctx context.Context, userID int64) (*session.TokenResponse, error) {
	if err := f.enter(ctx, MethodLoginAsUser); err != nil {
		return nil, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, acc := range f.accounts {
		if acc.user.ID == userID {
			return f.issueLocked(acc, false), nil
		}
	}
	return nil, rejected(MethodLoginAsUser, http.StatusNotFound, "user not found")
}

func (f *API) SwitchBack(ctx context.Context) (*session.TokenResponse, error) {
	if err := f.enter(ctx, MethodSwitchBack); err != nil {
		return nil, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, acc := range f.accounts {
		if acc.user.Role.IsAdmin() {
			f.current = acc.user.Email
			return f.issueLocked(acc, f.omitRole), nil
		}
	}
	return nil, rejected(MethodSwitchBack, http.StatusForbidden, "no admin to return to")
}

func (f *API) Me(ctx context.Context) (*users.AppUser, error) {
	if err := f.enter(ctx, MethodMe); err != nil {
		return nil, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()

	acc, ok := f.accounts[f.current]
	if !ok {
		return nil, rejected(MethodMe, http.StatusUnauthorized, "not signed in")
	}
	user := acc.user
	return &user, nil
}

// enter counts the call, waits on any gate and returns the scripted failure
func (f *API) enter(ctx context.Context, method string) error {
	f.lock.Lock()
	f.calls[method]++
	gate := f.gates[method]
	f.lock.Unlock()

	if gate != nil {
		gate.enter()
		select {
		case <-gate.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	return f.failures[method]
}

func (f *API) issueLocked(acc *account, omitRole bool) *session.TokenResponse {
	f.issued++
	refresh := fmt.Sprintf("refresh-%d", f.issued)
	f.refreshes[refresh] = acc.user.Email

	tr := &session.TokenResponse{
		AccessToken:  fmt.Sprintf("access-%d", f.issued),
		RefreshToken: refresh,
		ExpiresIn:    f.expiresIn,
		Role:         string(acc.user.Role),
	}
	if omitRole {
		tr.Role = ""
	}
	return tr
}

func rejected(method string, status int, msg string) error {
	return &apiclient.Error{Method: http.MethodPost, Path: method, StatusCode: status, Message: msg}
}

// Gate holds blocked calls until Release
type Gate struct {
	entered     chan struct{}
	release     chan struct{}
	enterOnce   sync.Once
	releaseOnce sync.Once
}

// Entered is closed once a call is waiting on the gate
func (g *Gate) Entered() <-chan struct{} {
	return g.entered
}

// Release lets every waiting and future call through
func (g *Gate) Release() {
	g.releaseOnce.Do(func() { close(g.release) })
}

func (g *Gate) enter() {
	g.enterOnce.Do(func() { close(g.entered) })
}
