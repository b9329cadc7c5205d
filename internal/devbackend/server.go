// Package devbackend is a development implementation of the REST auth
// contract the console consumes. Accounts, tokens and mail live in memory.
package devbackend

import (
	"net/http"
	"time"

	"github.com/fw-platform/wish-console/internal/config"
	"github.com/fw-platform/wish-console/internal/utils"
	"github.com/fw-platform/wish-console/users"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// APIPrefix is where the contract is mounted
const APIPrefix = "/api"

type Server struct {
	env      string
	config   config.DevBackendConfig
	router   chi.Router
	accounts *Accounts
	tokens   *Issuer
	outbox   *Outbox
	logger   zerolog.Logger
	now      func() time.Time

	rateLimit  int
	rateWindow time.Duration
}

// Option configures a Server
type Option func(*Server)

// WithLogger overrides the global zerolog logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithNowTime overrides the clock used for token and code expiry
func WithNowTime(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithRateLimit allows requests public auth calls per client IP per window. Zero disables it.
func WithRateLimit(requests int, window time.Duration) Option {
	return func(s *Server) {
		s.rateLimit = requests
		s.rateWindow = window
	}
}

func New(cfg config.DevBackendConfig, options ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[devbackend.New] config is required")
	}

	s := &Server{
		env:        cfg.GetEnv(),
		config:     cfg,
		router:     chi.NewRouter(),
		outbox:     NewOutbox(),
		logger:     log.Logger,
		now:        time.Now,
		rateLimit:  cfg.GetRateLimit(),
		rateWindow: time.Minute,
	}
	for _, opt := range options {
		opt(s)
	}
	s.accounts = NewAccounts(cfg.GetAppName())
	s.tokens = NewIssuer(cfg.GetJWTSecret(), cfg.GetAccessTokenTTL(), cfg.GetRefreshTokenTTL(), cfg.GetRefreshTokenLength(), s.now)

	if err := s.seed(); err != nil {
		return nil, errors.Wrap(err, "[devbackend.New] seed accounts")
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Accounts exposes the user table for seeding
func (s *Server) Accounts() *Accounts {
	return s.accounts
}

// Outbox exposes the codes and links that would have been emailed
func (s *Server) Outbox() *Outbox {
	return s.outbox
}

func (s *Server) seed() error {
	if _, err := s.accounts.Add(users.AppUser{Name: "Admin", Email: s.config.GetSeedAdminEmail(), Role: users.RoleAdmin, Active: utils.Ptr(true)}, s.config.GetSeedPassword()); err != nil {
		return err
	}
	_, err := s.accounts.Add(users.AppUser{Name: "User", Email: s.config.GetSeedUserEmail(), Role: users.RoleUser, Active: utils.Ptr(true)}, s.config.GetSeedPassword())
	return err
}

func (s *Server) initRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(s.LoggingMiddleware)
	r.Use(middleware.Recoverer)
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	r.Route(APIPrefix, func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimiter())
			r.Post("/auth/login", s.LoginHandler)
			r.Post("/auth/otp/send", s.SendOTPHandler)
			r.Post("/auth/otp/verify", s.VerifyOTPHandler)
			r.Post("/auth/refresh", s.RefreshHandler)
			r.Post("/auth/forgot-password", s.ForgotPasswordHandler)
			r.Post("/auth/password-reset/confirm", s.ConfirmPasswordResetHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.RequireAuth)
			r.Post("/auth/change-password", s.ChangePasswordHandler)
			r.Get("/auth/admin/switch-back", s.SwitchBackHandler)
			r.Get("/users/me", s.MeHandler)
			r.With(RequireAdmin).Post("/auth/admin/login-as-user", s.LoginAsUserHandler)
		})
	})
}

func (s *Server) rateLimiter() func(http.Handler) http.Handler {
	if s.rateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		s.rateLimit,
		s.rateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.logger.Warn().Str("ip", r.RemoteAddr).Str("path", r.URL.Path).Msg("rate limit exceeded")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded. please try again later")
		}),
	)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	_ = chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		logRoute(method, route)
		return nil
	})
}
