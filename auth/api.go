package auth

import (
	"context"

	"github.com/fw-platform/wish-console/apiclient"
	"github.com/fw-platform/wish-console/session"
	"github.com/fw-platform/wish-console/users"
)

// API is the backend surface the Manager drives. apiclient.Client implements it.
type API interface {
	Login(ctx context.Context, req apiclient.LoginRequest) (*session.TokenResponse, error)
	SendOTP(ctx context.Context, req apiclient.OTPRequest) error
	VerifyOTP(ctx context.Context, req apiclient.OTPVerifyRequest) (*session.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*session.TokenResponse, error)
	ForgotPassword(ctx context.Context, req apiclient.ForgotPasswordRequest) error
	ConfirmPasswordReset(ctx context.Context, req apiclient.PasswordResetConfirmRequest) error
	ChangePassword(ctx context.Context, req apiclient.ChangePasswordRequest) error
	LoginAsUser(ctx context.Context, userID int64) (*session.TokenResponse, error)
	SwitchBack(ctx context.Context) (*session.TokenResponse, error)
	Me(ctx context.Context) (*users.AppUser, error)
}

var _ API = (*apiclient.Client)(nil)

// Navigation targets
const (
	RouteLogin     = "/login"
	RouteDashboard = "/dashboard"
)

// Navigator moves the front end to a route after a transition
type Navigator interface {
	Navigate(route string)
}

// Notifier shows user-visible notices. notify.Toasts implements it.
type Notifier interface {
	Success(text string)
	Warning(text string)
	Error(text string)
}

// Notices shown by the Manager
const (
	NoticeSessionExpired   = "Your session has expired. Please sign in again."
	NoticeReturnedToAdmin  = "Returned to admin account."
	NoticeSwitchBackFailed = "Unable to switch back to admin right now."
)

// Reasons passed to ForceLogout
const (
	ReasonExpired       = "session expired"
	ReasonRefreshFailed = "refresh failed"
	ReasonForbidden     = "forbidden"
)

type nopNavigator struct{}

func (nopNavigator) Navigate(string) {}

type nopNotifier struct{}

func (nopNotifier) Success(string) {}
func (nopNotifier) Warning(string) {}
func (nopNotifier) Error(string)   {}
