// Package auth is the console's session manager: the state machine that
// moves between logged out, authenticated and impersonating, and keeps the
// token store, session clock and impersonation record consistent with it.
package auth

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fw-platform/wish-console/apiclient"
	"github.com/fw-platform/wish-console/impersonation"
	werrors "github.com/fw-platform/wish-console/internal/errors"
	"github.com/fw-platform/wish-console/session"
	"github.com/fw-platform/wish-console/sessionclock"
	"github.com/fw-platform/wish-console/tokenstore"
	"github.com/fw-platform/wish-console/users"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const defaultRefreshTimeout = 15 * time.Second

// Operations that reject a duplicate submission while one is in flight
const (
	opLogin         = "login"
	opVerifyOTP     = "verify-otp"
	opImpersonate   = "impersonate"
	opReturnToAdmin = "return-to-admin"
)

// Manager owns the session. All session transitions go through it.
//
// The generation counter identifies a session from the moment it is
// established until it ends. Asynchronous results (backend responses and
// timer callbacks) carry the generation they started under and are dropped
// when it is no longer current, so a late refresh can never revive a session
// that was logged out meanwhile. Every logout moves the counter, including
// one issued while already logged out, which discards logins in flight.
type Manager struct {
	api            API
	tokens         *tokenstore.Store
	imp            *impersonation.Store
	clock          *sessionclock.Clock
	validator      *Validator
	navigator      Navigator
	notifier       Notifier
	metrics        *metrics
	logger         zerolog.Logger
	refreshTimeout time.Duration
	nowTime        func() time.Time

	lock       sync.RWMutex
	state      State
	role       users.RoleType
	scope      session.Scope
	expiresAt  time.Time // Zero when the expiry is unknown
	generation uint64
	inFlight   map[string]bool

	refreshGroup singleflight.Group

	subLock     sync.Mutex
	subscribers map[int]func(Status)
	nextSubID   int
}

var _ oauth2.TokenSource = (*Manager)(nil)

// ManagerOption defines a function type to modify the Manager instance.
type ManagerOption func(*Manager)

// WithNavigator receives route changes after logout and impersonation stop
func WithNavigator(n Navigator) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.navigator = n
		}
	}
}

// WithNotifier receives user-visible notices
func WithNotifier(n Notifier) ManagerOption {
	return func(m *Manager) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithMetrics registers the session counters on registry
func WithMetrics(registry prometheus.Registerer) ManagerOption {
	return func(m *Manager) {
		if registry != nil {
			m.metrics = newMetrics(registry)
		}
	}
}

// WithLogger overrides the global zerolog logger
func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithRefreshTimeout bounds each backend refresh call
func WithRefreshTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// NewManager wires the session manager and restores any stored session.
func NewManager(
	api API,
	tokens *tokenstore.Store,
	imp *impersonation.Store,
	clock *sessionclock.Clock,
	options ...ManagerOption,
) (*Manager, error) {
	if api == nil {
		return nil, errors.New("[NewManager] api is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewManager] token store is required")
	}
	if imp == nil {
		return nil, errors.New("[NewManager] impersonation store is required")
	}
	if clock == nil {
		return nil, errors.New("[NewManager] session clock is required")
	}

	m := &Manager{
		api:            api,
		tokens:         tokens,
		imp:            imp,
		clock:          clock,
		validator:      NewValidator(),
		navigator:      nopNavigator{},
		notifier:       nopNotifier{},
		logger:         log.Logger,
		refreshTimeout: defaultRefreshTimeout,
		nowTime:        time.Now,
		inFlight:       make(map[string]bool),
		subscribers:    make(map[int]func(Status)),
	}

	for _, opt := range options {
		opt(m)
	}

	m.Restore()
	return m, nil
}

// Restore adopts whatever session the token store holds. Stored sessions
// carry no expiry so no timers are armed. An impersonation record without an
// ADMIN session underneath is dropped.
func (m *Manager) Restore() Status {
	sess, scope, ok := m.tokens.Read()

	m.lock.Lock()
	m.clock.Cancel()
	m.expiresAt = time.Time{}
	if ok {
		m.generation++
		m.state = StateAuthenticated
		m.role = sess.Role
		m.scope = scope
		if m.imp.IsActive() {
			if sess.Role.IsAdmin() {
				m.state = StateImpersonating
			} else {
				m.logger.Warn().Str("role", string(sess.Role)).Msg("Dropping impersonation record without an admin session")
				m.imp.Stop()
			}
		}
	} else {
		m.endLocked()
	}
	status := m.statusLocked()
	m.lock.Unlock()

	m.logger.Debug().Str("state", status.State.String()).Str("role", string(status.Role)).Msg("Session restored")
	m.publish(status)
	return status
}

// Login authenticates with email and password. RememberMe selects the
// durable scope.
func (m *Manager) Login(ctx context.Context, req apiclient.LoginRequest) error {
	if err := m.validator.ValidateCredentials(req.Email, req.Password); err != nil {
		return err
	}
	req.Email = strings.TrimSpace(req.Email)

	done, err := m.begin(opLogin)
	if err != nil {
		return err
	}
	defer done()

	gen := m.currentGeneration()
	tr, err := m.api.Login(ctx, req)
	if err != nil {
		m.metrics.login(methodPassword, resultFailure)
		return errors.Wrap(err, "[Manager.Login]")
	}

	err = m.establish(gen, tr.Session(), session.ChooseScope(req.RememberMe))
	m.metrics.login(methodPassword, resultOf(err))
	if err != nil {
		return errors.Wrap(err, "[Manager.Login]")
	}
	m.logger.Info().Str("email", req.Email).Bool("remember_me", req.RememberMe).Msg("Logged in")
	return nil
}

// SendOTP asks the backend to email a one-time code
func (m *Manager) SendOTP(ctx context.Context, email string) error {
	if err := m.validator.ValidateEmail(email); err != nil {
		return err
	}
	return errors.Wrap(m.api.SendOTP(ctx, apiclient.OTPRequest{Email: strings.TrimSpace(email)}), "[Manager.SendOTP]")
}

// VerifyOTP exchanges a one-time code for a session. OTP sessions are never
// remembered.
func (m *Manager) VerifyOTP(ctx context.Context, email, code string) error {
	if err := m.validator.ValidateEmail(email); err != nil {
		return err
	}
	if err := m.validator.ValidateOTP(code); err != nil {
		return err
	}

	done, err := m.begin(opVerifyOTP)
	if err != nil {
		return err
	}
	defer done()

	gen := m.currentGeneration()
	tr, err := m.api.VerifyOTP(ctx, apiclient.OTPVerifyRequest{Email: strings.TrimSpace(email), OTP: strings.TrimSpace(code)})
	if err != nil {
		m.metrics.login(methodOTP, resultFailure)
		return errors.Wrap(err, "[Manager.VerifyOTP]")
	}

	err = m.establish(gen, tr.Session(), session.ScopeEphemeral)
	m.metrics.login(methodOTP, resultOf(err))
	if err != nil {
		return errors.Wrap(err, "[Manager.VerifyOTP]")
	}
	m.logger.Info().Str("email", email).Msg("Logged in with one-time code")
	return nil
}

// ForgotPassword requests a reset link
func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	if err := m.validator.ValidateEmail(email); err != nil {
		return err
	}
	return errors.Wrap(m.api.ForgotPassword(ctx, apiclient.ForgotPasswordRequest{Email: strings.TrimSpace(email)}), "[Manager.ForgotPassword]")
}

// ConfirmPasswordReset sets a new password from an emailed reset link
func (m *Manager) ConfirmPasswordReset(ctx context.Context, email, token, newPassword string) error {
	if err := m.validator.ValidateResetLink(email, token); err != nil {
		return err
	}
	if err := m.validator.ValidateNewPassword(newPassword, newPassword); err != nil {
		return err
	}

	req := apiclient.PasswordResetConfirmRequest{
		Email:       strings.TrimSpace(email),
		Token:       strings.TrimSpace(token),
		NewPassword: newPassword,
	}
	return errors.Wrap(m.api.ConfirmPasswordReset(ctx, req), "[Manager.ConfirmPasswordReset]")
}

// ChangePassword changes the signed-in user's password
func (m *Manager) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	if !m.Authenticated() {
		return werrors.ErrNotAuthenticated
	}
	if currentPassword == "" {
		return werrors.Wrapf(werrors.ErrInvalidInput, "current password is required")
	}
	if err := m.validator.ValidateNewPassword(newPassword, newPassword); err != nil {
		return err
	}

	req := apiclient.ChangePasswordRequest{CurrentPassword: currentPassword, NewPassword: newPassword}
	return errors.Wrap(m.api.ChangePassword(ctx, req), "[Manager.ChangePassword]")
}

// Profile returns the impersonated user's record while impersonating,
// otherwise the signed-in user's profile from the backend.
func (m *Manager) Profile(ctx context.Context) (*users.AppUser, error) {
	m.lock.RLock()
	state := m.state
	m.lock.RUnlock()

	switch state {
	case StateLoggedOut:
		return nil, werrors.ErrNotAuthenticated
	case StateImpersonating:
		if user, ok := m.imp.Current(); ok {
			return &user, nil
		}
	}

	user, err := m.api.Me(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Manager.Profile]")
	}
	return user, nil
}

// Logout ends impersonation when impersonating, keeping the admin session.
// Otherwise it ends the session.
func (m *Manager) Logout() {
	m.lock.Lock()
	if m.state == StateImpersonating {
		m.imp.Stop()
		m.state = StateAuthenticated
		status := m.statusLocked()
		m.lock.Unlock()

		m.metrics.impersonation(actionStop, resultSuccess)
		m.logger.Info().Msg("Stopped impersonating")
		m.publish(status)
		m.navigator.Navigate(RouteDashboard)
		return
	}

	ended := m.endLocked()
	status := m.statusLocked()
	m.lock.Unlock()

	if ended {
		m.logger.Info().Msg("Logged out")
		m.publish(status)
	}
	m.navigator.Navigate(RouteLogin)
}

// ForceLogout ends the session regardless of impersonation and tells the
// user. Calling it while logged out only clears storage.
func (m *Manager) ForceLogout(reason string) {
	m.forceLogout(nil, reason)
}

func (m *Manager) forceLogout(gen *uint64, reason string) {
	m.lock.Lock()
	if gen != nil && *gen != m.generation {
		m.lock.Unlock()
		return
	}
	ended := m.endLocked()
	status := m.statusLocked()
	m.lock.Unlock()

	if !ended {
		return
	}
	m.metrics.forcedLogout(reason)
	m.logger.Warn().Str("reason", reason).Msg("Session ended")
	m.publish(status)
	m.notifier.Warning(NoticeSessionExpired)
	m.navigator.Navigate(RouteLogin)
}

// Refresh exchanges the stored refresh token for a new session. Concurrent
// callers share one backend call. A rejected refresh ends the session; a
// cancelled ctx only stops this caller waiting.
func (m *Manager) Refresh(ctx context.Context) (session.Session, error) {
	m.lock.RLock()
	gen, state, role := m.generation, m.state, m.role
	m.lock.RUnlock()

	if state == StateLoggedOut {
		return session.Session{}, werrors.ErrNotAuthenticated
	}

	ch := m.refreshGroup.DoChan(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return m.refresh(gen, role)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return session.Session{}, res.Err
		}
		return res.Val.(session.Session), nil
	case <-ctx.Done():
		return session.Session{}, errors.Wrap(ctx.Err(), "[Manager.Refresh]")
	}
}

func (m *Manager) refresh(gen uint64, role users.RoleType) (session.Session, error) {
	refreshToken := m.tokens.RefreshToken()
	if refreshToken == "" {
		m.metrics.refresh(resultFailure)
		m.forceLogout(&gen, ReasonRefreshFailed)
		return session.Session{}, werrors.ErrNoRefreshToken
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	defer cancel()

	tr, err := m.api.Refresh(ctx, refreshToken)
	if err != nil {
		if m.currentGeneration() != gen {
			m.metrics.refresh(resultSuperseded)
			return session.Session{}, werrors.ErrSessionSuperseded
		}
		m.metrics.refresh(resultFailure)
		m.logger.Err(err).Msg("Session refresh failed")
		m.forceLogout(&gen, ReasonRefreshFailed)
		return session.Session{}, errors.Wrap(err, "[Manager.Refresh]")
	}

	sess := renewed(tr, role, refreshToken)
	if err := m.renew(gen, sess, false); err != nil {
		if werrors.Is(err, werrors.ErrSessionSuperseded) {
			m.metrics.refresh(resultSuperseded)
			m.logger.Debug().Msg("Discarding refresh for a session that has ended")
			return session.Session{}, err
		}
		m.metrics.refresh(resultFailure)
		m.forceLogout(&gen, ReasonRefreshFailed)
		return session.Session{}, errors.Wrap(err, "[Manager.Refresh]")
	}

	m.metrics.refresh(resultSuccess)
	m.logger.Debug().Float64("expires_in", sess.ExpiresIn).Msg("Session refreshed")
	return sess, nil
}

// StartImpersonation views the console as user. The admin token stays in
// place; only the impersonation record changes.
func (m *Manager) StartImpersonation(ctx context.Context, user users.AppUser) error {
	done, err := m.begin(opImpersonate)
	if err != nil {
		return err
	}
	defer done()

	m.lock.RLock()
	gen, state, role := m.generation, m.state, m.role
	m.lock.RUnlock()

	if state == StateLoggedOut {
		return werrors.ErrNotAuthenticated
	}
	if !role.IsAdmin() {
		return werrors.ErrNotAdmin
	}

	if _, err := m.api.LoginAsUser(ctx, user.ID); err != nil {
		m.metrics.impersonation(actionStart, resultFailure)
		return errors.Wrap(err, "[Manager.StartImpersonation]")
	}

	m.lock.Lock()
	if m.generation != gen || m.state == StateLoggedOut {
		m.lock.Unlock()
		m.metrics.impersonation(actionStart, resultSuperseded)
		return werrors.ErrSessionSuperseded
	}
	m.imp.Start(user)
	m.state = StateImpersonating
	status := m.statusLocked()
	m.lock.Unlock()

	m.metrics.impersonation(actionStart, resultSuccess)
	m.logger.Info().Int64("user_id", user.ID).Str("email", user.Email).Msg("Impersonating user")
	m.publish(status)
	return nil
}

// ReturnToAdmin asks the backend to switch back, saves the returned admin
// token and stops impersonating. On failure nothing changes and the user is
// told.
func (m *Manager) ReturnToAdmin(ctx context.Context) error {
	done, err := m.begin(opReturnToAdmin)
	if err != nil {
		return err
	}
	defer done()

	m.lock.RLock()
	gen, state := m.generation, m.state
	m.lock.RUnlock()

	if state != StateImpersonating {
		return werrors.ErrNotImpersonating
	}

	tr, err := m.api.SwitchBack(ctx)
	if err == nil {
		err = m.renew(gen, renewed(tr, users.RoleAdmin, m.tokens.RefreshToken()), true)
	}
	if err != nil {
		m.metrics.impersonation(actionStop, resultFailure)
		m.logger.Err(err).Msg("Switch back to admin failed")
		m.notifier.Error(NoticeSwitchBackFailed)
		return errors.Wrap(err, "[Manager.ReturnToAdmin]")
	}

	m.metrics.impersonation(actionStop, resultSuccess)
	m.logger.Info().Msg("Returned to admin account")
	m.notifier.Success(NoticeReturnedToAdmin)
	return nil
}

// AccessToken returns the stored access token, or "" when logged out
func (m *Manager) AccessToken() string {
	return m.tokens.AccessToken()
}

// Token implements oauth2.TokenSource. Expiry is zero when unknown.
func (m *Manager) Token() (*oauth2.Token, error) {
	sess, _, ok := m.tokens.Read()
	if !ok {
		return nil, werrors.ErrNotAuthenticated
	}

	m.lock.RLock()
	expiresAt := m.expiresAt
	m.lock.RUnlock()

	tok := sess.OAuth2Token(m.nowTime())
	tok.Expiry = expiresAt
	return tok, nil
}

// Status returns the current snapshot
func (m *Manager) Status() Status {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.statusLocked()
}

func (m *Manager) Authenticated() bool {
	return m.Status().Authenticated
}

func (m *Manager) Role() users.RoleType {
	return m.Status().Role
}

// IsAdmin is true for an ADMIN session that is not impersonating
func (m *Manager) IsAdmin() bool {
	return m.Status().IsAdmin
}

// Scope returns the persistence scope holding the session
func (m *Manager) Scope() session.Scope {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.scope
}

// ExpiresAt returns when the current access token expires, if known
func (m *Manager) ExpiresAt() (time.Time, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.expiresAt, !m.expiresAt.IsZero()
}

// Subscribe calls fn after every transition. The returned func unsubscribes.
func (m *Manager) Subscribe(fn func(Status)) func() {
	m.subLock.Lock()
	defer m.subLock.Unlock()

	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn

	return func() {
		m.subLock.Lock()
		defer m.subLock.Unlock()
		delete(m.subscribers, id)
	}
}

func (m *Manager) publish(status Status) {
	m.subLock.Lock()
	subs := make([]func(Status), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.subLock.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}

// establish replaces any current session with sess
func (m *Manager) establish(gen uint64, sess session.Session, scope session.Scope) error {
	m.lock.Lock()
	if m.generation != gen {
		m.lock.Unlock()
		return werrors.ErrSessionSuperseded
	}
	if err := m.tokens.Save(sess, scope); err != nil {
		m.lock.Unlock()
		return err
	}
	m.imp.Stop()
	m.generation++
	m.state = StateAuthenticated
	m.role = sess.Role
	m.scope = scope
	m.armLocked(sess)
	status := m.statusLocked()
	m.lock.Unlock()

	m.publish(status)
	return nil
}

// renew swaps in new tokens for the session of generation gen, in the scope
// that already holds it
func (m *Manager) renew(gen uint64, sess session.Session, stopImpersonation bool) error {
	m.lock.Lock()
	if m.generation != gen || m.state == StateLoggedOut {
		m.lock.Unlock()
		return werrors.ErrSessionSuperseded
	}
	if err := m.tokens.Save(sess, m.scope); err != nil {
		m.lock.Unlock()
		return err
	}
	m.role = sess.Role
	if stopImpersonation {
		m.imp.Stop()
		m.state = StateAuthenticated
	}
	m.armLocked(sess)
	status := m.statusLocked()
	m.lock.Unlock()

	m.publish(status)
	return nil
}

// endLocked clears every trace of the session and reports whether one was active
func (m *Manager) endLocked() bool {
	m.tokens.Clear()
	m.clock.Cancel()
	m.imp.Stop()

	ended := m.state != StateLoggedOut
	m.generation++
	m.state = StateLoggedOut
	m.role = ""
	m.expiresAt = time.Time{}
	return ended
}

func (m *Manager) armLocked(sess session.Session) {
	if m.clock.Arm(sess.ExpiresIn, m.generation, m.onExpire, m.onRefreshDue) {
		m.expiresAt = m.nowTime().Add(sess.ExpiryDuration())
		return
	}
	m.expiresAt = time.Time{}
}

func (m *Manager) onExpire(gen uint64) {
	m.forceLogout(&gen, ReasonExpired)
}

// onRefreshDue refreshes in the background so the expire timer of the same
// cycle can still fire while a refresh hangs
func (m *Manager) onRefreshDue(gen uint64) {
	if m.currentGeneration() != gen {
		return
	}
	go func() {
		if _, err := m.Refresh(context.Background()); err != nil {
			m.logger.Debug().Err(err).Msg("Scheduled refresh did not complete")
		}
	}()
}

func (m *Manager) statusLocked() Status {
	var impersonating *users.AppUser
	if m.state == StateImpersonating {
		if user, ok := m.imp.Current(); ok {
			impersonating = &user
		}
	}
	return newStatus(m.state, m.role, impersonating)
}

func (m *Manager) currentGeneration() uint64 {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.generation
}

// begin marks op in flight. The returned func clears the mark.
func (m *Manager) begin(op string) (func(), error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.inFlight[op] {
		return nil, werrors.ErrOperationInProgress
	}
	m.inFlight[op] = true

	return func() {
		m.lock.Lock()
		defer m.lock.Unlock()
		delete(m.inFlight, op)
	}, nil
}

// renewed converts a refresh or switch-back response. A missing role keeps
// fallbackRole and a missing refresh token keeps the current one, for
// backends that do not rotate it.
func renewed(tr *session.TokenResponse, fallbackRole users.RoleType, currentRefresh string) session.Session {
	sess := tr.Session()
	if strings.TrimSpace(tr.Role) == "" {
		sess.Role = fallbackRole
	}
	if sess.RefreshToken == "" {
		sess.RefreshToken = currentRefresh
	}
	return sess
}
