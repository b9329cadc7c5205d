package devbackend

import (
	"strings"
	"sync"

	werrors "github.com/fw-platform/wish-console/internal/errors"
	"github.com/fw-platform/wish-console/users"
	"github.com/pkg/errors"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAccountNotFound    = werrors.Wrapf(werrors.ErrNotFound, "account")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountInactive    = errors.New("account is inactive")
)

type account struct {
	user      users.AppUser
	hash      []byte
	otpSecret string // Base32 TOTP secret used for emailed one-time codes
}

// Accounts is the dev backend's user table
type Accounts struct {
	lock    sync.RWMutex
	byEmail map[string]*account
	nextID  int64
	cost    int
	issuer  string
}

func NewAccounts(issuer string) *Accounts {
	return &Accounts{
		byEmail: make(map[string]*account),
		nextID:  1,
		cost:    bcrypt.DefaultCost,
		issuer:  issuer,
	}
}

// Add registers user with password. A zero ID is assigned the next free one.
func (a *Accounts) Add(user users.AppUser, password string) (users.AppUser, error) {
	user.Email = normaliseEmail(user.Email)
	if user.Email == "" {
		return users.AppUser{}, errors.New("[Accounts.Add] email is required")
	}
	if !user.Role.Valid() {
		user.Role = users.RoleUser
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return users.AppUser{}, errors.Wrap(err, "[Accounts.Add] hash password")
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: a.issuer, AccountName: user.Email})
	if err != nil {
		return users.AppUser{}, errors.Wrap(err, "[Accounts.Add] generate otp secret")
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	if _, ok := a.byEmail[user.Email]; ok {
		return users.AppUser{}, errors.Wrapf(ErrAccountExists, "[Accounts.Add] %s", user.Email)
	}
	if user.ID == 0 {
		user.ID = a.nextID
	}
	if user.ID >= a.nextID {
		a.nextID = user.ID + 1
	}
	a.byEmail[user.Email] = &account{user: user, hash: hash, otpSecret: key.Secret()}
	return user, nil
}

// Authenticate checks the password and returns the account's user
func (a *Accounts) Authenticate(email, password string) (users.AppUser, error) {
	a.lock.RLock()
	acc, ok := a.byEmail[normaliseEmail(email)]
	a.lock.RUnlock()

	if !ok {
		return users.AppUser{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
		return users.AppUser{}, ErrInvalidCredentials
	}
	if !acc.user.IsActive() {
		return users.AppUser{}, ErrAccountInactive
	}
	return acc.user, nil
}

func (a *Accounts) ByEmail(email string) (users.AppUser, error) {
	a.lock.RLock()
	defer a.lock.RUnlock()

	acc, ok := a.byEmail[normaliseEmail(email)]
	if !ok {
		return users.AppUser{}, ErrAccountNotFound
	}
	return acc.user, nil
}

func (a *Accounts) ByID(id int64) (users.AppUser, error) {
	a.lock.RLock()
	defer a.lock.RUnlock()

	for _, acc := range a.byEmail {
		if acc.user.ID == id {
			return acc.user, nil
		}
	}
	return users.AppUser{}, ErrAccountNotFound
}

// SetPassword replaces the password of email
func (a *Accounts) SetPassword(email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return errors.Wrap(err, "[Accounts.SetPassword] hash password")
	}

	a.lock.Lock()
	defer a.lock.Unlock()

	acc, ok := a.byEmail[normaliseEmail(email)]
	if !ok {
		return ErrAccountNotFound
	}
	acc.hash = hash
	return nil
}

func (a *Accounts) otpSecret(email string) (string, bool) {
	a.lock.RLock()
	defer a.lock.RUnlock()

	acc, ok := a.byEmail[normaliseEmail(email)]
	if !ok {
		return "", false
	}
	return acc.otpSecret, true
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
