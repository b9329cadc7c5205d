// Package impersonation holds the optional "viewing as" user record. The
// record lives in the ephemeral scope only so it never outlives the
// terminal or browser session, even when the real login was remembered.
package impersonation

import (
	"encoding/json"
	"sync"

	"github.com/fw-platform/wish-console/storage"
	"github.com/fw-platform/wish-console/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Key is the ephemeral storage key of the JSON user snapshot
const Key = "impersonation"

type Store struct {
	ephemeral storage.Storage
	logger    zerolog.Logger

	lock sync.RWMutex
	user *users.AppUser
}

type Option func(*Store)

// WithLogger overrides the global zerolog logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New loads any record already present in the ephemeral scope
func New(ephemeral storage.Storage, options ...Option) *Store {
	s := &Store{
		ephemeral: ephemeral,
		logger:    log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	s.user = s.load()
	return s
}

// Start records user, replacing any existing record
func (s *Store) Start(user users.AppUser) {
	s.lock.Lock()
	defer s.lock.Unlock()

	data, err := json.Marshal(user)
	if err != nil {
		s.logger.Err(err).Int64("user_id", user.ID).Msg("Failed to encode impersonation record")
	} else {
		s.ephemeral.Set(Key, string(data))
	}
	s.user = &user
}

// Stop clears the record
func (s *Store) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.ephemeral.Remove(Key)
	s.user = nil
}

func (s *Store) IsActive() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return s.user != nil
}

// Current returns a copy of the impersonated user
func (s *Store) Current() (users.AppUser, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.user == nil {
		return users.AppUser{}, false
	}
	return *s.user, true
}

// load treats corrupt data as no record
func (s *Store) load() *users.AppUser {
	raw, ok := s.ephemeral.Get(Key)
	if !ok || raw == "" {
		return nil
	}

	var user users.AppUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.logger.Debug().Err(err).Msg("Ignoring corrupt impersonation record")
		return nil
	}
	return &user
}
