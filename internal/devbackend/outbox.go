package devbackend

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	otpPeriod   = 300 // Seconds an emailed code stays valid
	otpSkew     = 1
	resetExpiry = time.Hour
)

var otpOpts = totp.ValidateOpts{
	Period:    otpPeriod,
	Skew:      otpSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

type resetLink struct {
	token     string
	expiresAt time.Time
}

// Outbox stands in for the mailer. It keeps the last one-time code and
// reset link sent to each address so they can be read back.
type Outbox struct {
	lock   sync.Mutex
	otps   map[string]string
	resets map[string]resetLink
}

func NewOutbox() *Outbox {
	return &Outbox{
		otps:   make(map[string]string),
		resets: make(map[string]resetLink),
	}
}

// OTP returns the pending one-time code for email
func (o *Outbox) OTP(email string) string {
	o.lock.Lock()
	defer o.lock.Unlock()

	return o.otps[normaliseEmail(email)]
}

// ResetToken returns the pending password reset token for email
func (o *Outbox) ResetToken(email string) string {
	o.lock.Lock()
	defer o.lock.Unlock()

	return o.resets[normaliseEmail(email)].token
}

func (o *Outbox) sendOTP(email, secret string, now time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(secret, now, otpOpts)
	if err != nil {
		return "", errors.Wrap(err, "[Outbox.sendOTP] generate code")
	}

	o.lock.Lock()
	defer o.lock.Unlock()

	o.otps[normaliseEmail(email)] = code
	return code, nil
}

// consumeOTP accepts a pending code once
func (o *Outbox) consumeOTP(email, code, secret string, now time.Time) bool {
	email = normaliseEmail(email)

	o.lock.Lock()
	defer o.lock.Unlock()

	pending, ok := o.otps[email]
	if !ok || pending != code {
		return false
	}
	valid, err := totp.ValidateCustom(code, secret, now, otpOpts)
	if err != nil || !valid {
		return false
	}
	delete(o.otps, email)
	return true
}

func (o *Outbox) sendReset(email string, length int, now time.Time) (string, error) {
	tokenBytes := make([]byte, length)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "[Outbox.sendReset] generate token")
	}
	token := hex.EncodeToString(tokenBytes)

	o.lock.Lock()
	defer o.lock.Unlock()

	o.resets[normaliseEmail(email)] = resetLink{token: token, expiresAt: now.Add(resetExpiry)}
	return token, nil
}

// consumeReset accepts a reset token once, before it expires
func (o *Outbox) consumeReset(email, token string, now time.Time) bool {
	email = normaliseEmail(email)

	o.lock.Lock()
	defer o.lock.Unlock()

	link, ok := o.resets[email]
	if !ok || link.token == "" || link.token != token {
		return false
	}
	delete(o.resets, email)
	return now.Before(link.expiresAt)
}
