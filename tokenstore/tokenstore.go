// Package tokenstore persists the session triple across the durable and
// ephemeral scopes. It is a persistence surface only; the session manager
// owns the session.
package tokenstore

import (
	werrors "github.com/fw-platform/wish-console/internal/errors"
	"github.com/fw-platform/wish-console/session"
	"github.com/fw-platform/wish-console/storage"
	"github.com/fw-platform/wish-console/users"
)

// Keys are identical in both scopes
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyRole         = "role"
)

var keys = []string{KeyAccessToken, KeyRefreshToken, KeyRole}

type Store struct {
	durable   storage.Storage
	ephemeral storage.Storage
}

func New(durable, ephemeral storage.Storage) *Store {
	return &Store{
		durable:   durable,
		ephemeral: ephemeral,
	}
}

// Save clears both scopes and writes the session into the chosen one
func (s *Store) Save(sess session.Session, scope session.Scope) error {
	if !sess.Complete() {
		return werrors.ErrIncompleteSession
	}

	s.Clear()
	target := s.scope(scope)
	target.Set(KeyAccessToken, sess.AccessToken)
	target.Set(KeyRefreshToken, sess.RefreshToken)
	target.Set(KeyRole, string(sess.Role))
	return nil
}

// Read returns the stored session, durable scope first. The expiry is not
// persisted so ExpiresIn is always zero.
func (s *Store) Read() (session.Session, session.Scope, bool) {
	if sess, ok := read(s.durable); ok {
		return sess, session.ScopeDurable, true
	}
	if sess, ok := read(s.ephemeral); ok {
		return sess, session.ScopeEphemeral, true
	}
	return session.Session{}, session.ScopeEphemeral, false
}

// Clear removes the session from both scopes
func (s *Store) Clear() {
	for _, key := range keys {
		s.durable.Remove(key)
		s.ephemeral.Remove(key)
	}
}

// AccessToken returns the stored access token or ""
func (s *Store) AccessToken() string {
	sess, _, _ := s.Read()
	return sess.AccessToken
}

// RefreshToken returns the stored refresh token or ""
func (s *Store) RefreshToken() string {
	sess, _, _ := s.Read()
	return sess.RefreshToken
}

func (s *Store) scope(scope session.Scope) storage.Storage {
	if scope == session.ScopeDurable {
		return s.durable
	}
	return s.ephemeral
}

// read treats a scope with any key missing as empty
func read(st storage.Storage) (session.Session, bool) {
	access, ok := st.Get(KeyAccessToken)
	if !ok || access == "" {
		return session.Session{}, false
	}
	refresh, ok := st.Get(KeyRefreshToken)
	if !ok || refresh == "" {
		return session.Session{}, false
	}
	role, ok := st.Get(KeyRole)
	if !ok || role == "" {
		return session.Session{}, false
	}
	return session.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		Role:         users.ParseRole(role),
	}, true
}
