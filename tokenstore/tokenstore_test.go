package tokenstore_test

import (
	"testing"

	werrors "github.com/fw-platform/wish-console/internal/errors"
	"github.com/fw-platform/wish-console/session"
	"github.com/fw-platform/wish-console/storage/memory"
	"github.com/fw-platform/wish-console/tokenstore"
	"github.com/fw-platform/wish-console/users"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	durable   *memory.Memory
	ephemeral *memory.Memory
	store     *tokenstore.Store
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	d, e := memory.New(), memory.New()
	return &testFixture{
		durable:   d,
		ephemeral: e,
		store:     tokenstore.New(d, e),
	}
}

func adminSession() session.Session {
	return session.Session{AccessToken: "access-1", RefreshToken: "refresh-1", Role: users.RoleAdmin, ExpiresIn: 900}
}

func TestSaveDurableRoundTrip(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.store.Save(adminSession(), session.ScopeDurable))

	got, scope, ok := f.store.Read()
	require.True(t, ok)
	require.Equal(t, session.ScopeDurable, scope)
	require.Equal(t, "access-1", got.AccessToken)
	require.Equal(t, "refresh-1", got.RefreshToken)
	require.Equal(t, users.RoleAdmin, got.Role)
	require.Equal(t, 0, f.ephemeral.Len())
}

func TestSaveSwitchingScopeClearsTheOther(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.store.Save(adminSession(), session.ScopeDurable))
	require.NoError(t, f.store.Save(session.Session{AccessToken: "a2", RefreshToken: "r2", Role: users.RoleUser}, session.ScopeEphemeral))

	require.Equal(t, 0, f.durable.Len())
	got, scope, ok := f.store.Read()
	require.True(t, ok)
	require.Equal(t, session.ScopeEphemeral, scope)
	require.Equal(t, "a2", got.AccessToken)
}

func TestReadPrefersDurable(t *testing.T) {
	f := setupTestFixture(t)

	f.ephemeral.Set(tokenstore.KeyAccessToken, "eph")
	f.ephemeral.Set(tokenstore.KeyRefreshToken, "eph-r")
	f.ephemeral.Set(tokenstore.KeyRole, "USER")
	f.durable.Set(tokenstore.KeyAccessToken, "dur")
	f.durable.Set(tokenstore.KeyRefreshToken, "dur-r")
	f.durable.Set(tokenstore.KeyRole, "ADMIN")

	got, scope, ok := f.store.Read()
	require.True(t, ok)
	require.Equal(t, session.ScopeDurable, scope)
	require.Equal(t, "dur", got.AccessToken)
	require.Equal(t, "dur", f.store.AccessToken())
	require.Equal(t, "dur-r", f.store.RefreshToken())
}

func TestPartialScopeReadsAbsent(t *testing.T) {
	f := setupTestFixture(t)

	f.durable.Set(tokenstore.KeyAccessToken, "dur")
	f.durable.Set(tokenstore.KeyRole, "ADMIN")

	_, _, ok := f.store.Read()
	require.False(t, ok)
	require.Empty(t, f.store.AccessToken())
}

func TestClearIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)

	require.NoError(t, f.store.Save(adminSession(), session.ScopeEphemeral))
	f.store.Clear()
	f.store.Clear()

	_, _, ok := f.store.Read()
	require.False(t, ok)
	require.Equal(t, 0, f.durable.Len())
	require.Equal(t, 0, f.ephemeral.Len())
}

func TestSaveRejectsIncompleteSession(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.store.Save(adminSession(), session.ScopeDurable))

	err := f.store.Save(session.Session{AccessToken: "only"}, session.ScopeDurable)
	require.ErrorIs(t, err, werrors.ErrIncompleteSession)

	// The previous session is untouched
	got, _, ok := f.store.Read()
	require.True(t, ok)
	require.Equal(t, "access-1", got.AccessToken)
}
