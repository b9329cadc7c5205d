package auth

import (
	"net/mail"
	"strings"
	"unicode"

	werrors "github.com/fw-platform/wish-console/internal/errors"
)

const (
	// MinPasswordLength applies to new passwords on reset and change
	MinPasswordLength = 8

	otpMinLength = 4
	otpMaxLength = 6
)

// Validator checks form input before it is sent to the backend so obviously
// bad submissions never cost a round trip. Every failure wraps
// ErrInvalidInput.
type Validator struct{}

// NewValidator creates a new Validator instance
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateEmail requires a single bare address
func (v *Validator) ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return werrors.Wrapf(werrors.ErrInvalidInput, "email is required")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return werrors.Wrapf(werrors.ErrInvalidInput, "email %q is not a valid address", email)
	}
	return nil
}

// ValidateCredentials checks the password login form
func (v *Validator) ValidateCredentials(email, password string) error {
	if err := v.ValidateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return werrors.Wrapf(werrors.ErrInvalidInput, "password is required")
	}
	return nil
}

// ValidateOTP checks a one-time code: 4 to 6 digits
func (v *Validator) ValidateOTP(code string) error {
	code = strings.TrimSpace(code)
	if len(code) < otpMinLength || len(code) > otpMaxLength {
		return werrors.Wrapf(werrors.ErrInvalidInput, "code must be %d to %d digits", otpMinLength, otpMaxLength)
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return werrors.Wrapf(werrors.ErrInvalidInput, "code must be digits only")
		}
	}
	return nil
}

// ValidateNewPassword checks a new password against its confirmation
func (v *Validator) ValidateNewPassword(newPassword, confirmPassword string) error {
	if len([]rune(newPassword)) < MinPasswordLength {
		return werrors.Wrapf(werrors.ErrInvalidInput, "password must be at least %d characters", MinPasswordLength)
	}
	if newPassword != confirmPassword {
		return werrors.Wrapf(werrors.ErrInvalidInput, "password and confirm password must match")
	}
	return nil
}

// ValidateResetLink requires both halves of an emailed reset link
func (v *Validator) ValidateResetLink(email, token string) error {
	if strings.TrimSpace(token) == "" {
		return werrors.Wrapf(werrors.ErrInvalidInput, "reset link is missing a token")
	}
	return v.ValidateEmail(email)
}
