package apiclient

// Route paths relative to the API base URL
const (
	RouteLogin                = "/auth/login"
	RouteOTPSend              = "/auth/otp/send"
	RouteOTPVerify            = "/auth/otp/verify"
	RouteRefresh              = "/auth/refresh"
	RouteForgotPassword       = "/auth/forgot-password"
	RoutePasswordResetConfirm = "/auth/password-reset/confirm"
	RouteChangePassword       = "/auth/change-password"
	RouteAdminLoginAsUser     = "/auth/admin/login-as-user"
	RouteAdminSwitchBack      = "/auth/admin/switch-back"
	RouteUsersMe              = "/users/me"
)

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type OTPRequest struct {
	Email string `json:"email"`
}

type OTPVerifyRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type PasswordResetConfirmRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type LoginAsUserRequest struct {
	UserID int64 `json:"userId"`
}
