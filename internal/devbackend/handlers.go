package devbackend

import (
	"encoding/json"
	"net/http"

	"github.com/fw-platform/wish-console/apiclient"
	"github.com/fw-platform/wish-console/auth"
	"github.com/fw-platform/wish-console/users"
	"github.com/pkg/errors"
)

type messageResponse struct {
	Message string `json:"message"`
}

type oauthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, messageResponse{Message: msg})
}

func writeOAuthError(w http.ResponseWriter, status int, description string) {
	writeJSON(w, status, oauthError{Error: "unauthorized", ErrorDescription: description})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req apiclient.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := s.accounts.Authenticate(req.Email, req.Password)
	switch {
	case errors.Is(err, ErrAccountInactive):
		writeError(w, http.StatusForbidden, "Account is inactive")
		return
	case err != nil:
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	s.logger.Info().Str("email", user.Email).Bool("remember_me", req.RememberMe).Msg("signed in")
	s.issue(w, user, "")
}

// SendOTPHandler answers the same way whether or not the account exists
func (s *Server) SendOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req apiclient.OTPRequest
	if !decode(w, r, &req) {
		return
	}

	if secret, ok := s.accounts.otpSecret(req.Email); ok {
		code, err := s.outbox.sendOTP(req.Email, secret, s.now())
		if err != nil {
			s.logger.Err(err).Msg("send otp")
			writeError(w, http.StatusInternalServerError, "unable to send code")
			return
		}
		s.logger.Info().Str("email", req.Email).Str("code", code).Msg("one-time code sent")
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "If the account exists, a code has been sent"})
}

func (s *Server) VerifyOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req apiclient.OTPVerifyRequest
	if !decode(w, r, &req) {
		return
	}

	secret, ok := s.accounts.otpSecret(req.Email)
	if !ok || !s.outbox.consumeOTP(req.Email, req.OTP, secret, s.now()) {
		writeError(w, http.StatusUnauthorized, "Invalid or expired code")
		return
	}
	user, err := s.accounts.ByEmail(req.Email)
	if err != nil || !user.IsActive() {
		writeError(w, http.StatusUnauthorized, "Invalid or expired code")
		return
	}

	s.issue(w, user, "")
}

// RefreshHandler rotates the refresh token and keeps any impersonation
func (s *Server) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req apiclient.RefreshRequest
	if !decode(w, r, &req) {
		return
	}

	rt, err := s.tokens.Rotate(req.RefreshToken)
	if err != nil {
		writeOAuthError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	user, err := s.accounts.ByEmail(rt.email)
	if err != nil || !user.IsActive() {
		writeOAuthError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	s.issue(w, user, rt.impersonator)
}

// ForgotPasswordHandler answers the same way whether or not the account exists
func (s *Server) ForgotPasswordHandler(w http.ResponseWriter, r *http.Request) {
	var req apiclient.ForgotPasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if _, err := s.accounts.ByEmail(req.Email); err == nil {
		token, err := s.outbox.sendReset(req.Email, s.config.GetRefreshTokenLength(), s.now())
		if err != nil {
			s.logger.Err(err).Msg("send reset link")
			writeError(w, http.StatusInternalServerError, "unable to send reset link")
			return
		}
		s.logger.Info().Str("email", req.Email).Str("token", token).Msg("password reset link sent")
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "If the account exists, a reset link has been sent"})
}

func (s *Server) ConfirmPasswordResetHandler(w http.ResponseWriter, r *http.Request) {
	var req apiclient.PasswordResetConfirmRequest
	if !decode(w, r, &req) {
		return
	}

	if len(req.NewPassword) < auth.MinPasswordLength {
		writeError(w, http.StatusBadRequest, "Password is too short")
		return
	}
	if !s.outbox.consumeReset(req.Email, req.Token, s.now()) {
		writeError(w, http.StatusBadRequest, "Reset link is invalid or expired")
		return
	}
	if err := s.accounts.SetPassword(req.Email, req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, "Reset link is invalid or expired")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password updated"})
}

func (s *Server) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var req apiclient.ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}

	if len(req.NewPassword) < auth.MinPasswordLength {
		writeError(w, http.StatusBadRequest, "Password is too short")
		return
	}
	if _, err := s.accounts.Authenticate(claims.Email, req.CurrentPassword); err != nil {
		writeError(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	if err := s.accounts.SetPassword(claims.Email, req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, "unable to change password")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Password changed"})
}

// LoginAsUserHandler issues tokens for the target user that remember the admin
func (s *Server) LoginAsUserHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var req apiclient.LoginAsUserRequest
	if !decode(w, r, &req) {
		return
	}

	target, err := s.accounts.ByID(req.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if !target.IsActive() {
		writeError(w, http.StatusBadRequest, "User is inactive")
		return
	}

	s.logger.Info().Str("admin", claims.Email).Str("user", target.Email).Msg("login as user")
	s.issue(w, target, claims.Email)
}

// SwitchBackHandler returns admin tokens. It accepts either an impersonation
// token or the admin's own token.
func (s *Server) SwitchBackHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	email := claims.Impersonator
	if email == "" {
		email = claims.Email
	}
	admin, err := s.accounts.ByEmail(email)
	if err != nil || !admin.Role.IsAdmin() {
		writeError(w, http.StatusForbidden, "Not impersonating")
		return
	}

	s.issue(w, admin, "")
}

func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	user, err := s.accounts.ByEmail(claims.Email)
	if err != nil {
		writeOAuthError(w, http.StatusUnauthorized, "Unknown user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) issue(w http.ResponseWriter, user users.AppUser, impersonator string) {
	tr, err := s.tokens.Issue(user, impersonator)
	if err != nil {
		s.logger.Err(err).Msg("issue tokens")
		writeError(w, http.StatusInternalServerError, "unable to issue tokens")
		return
	}
	writeJSON(w, http.StatusOK, tr)
}
