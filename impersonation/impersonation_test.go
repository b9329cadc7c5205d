package impersonation_test

import (
	"bytes"
	"testing"

	"github.com/fw-platform/wish-console/impersonation"
	"github.com/fw-platform/wish-console/storage/memory"
	"github.com/fw-platform/wish-console/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testUser() users.AppUser {
	return users.AppUser{
		ID:                7,
		Name:              "Ann Example",
		Email:             "ann@example.com",
		Role:              users.RoleUser,
		IsBirthdayEnabled: true,
	}
}

func TestStartStop(t *testing.T) {
	eph := memory.New()
	s := impersonation.New(eph)
	require.False(t, s.IsActive())

	s.Start(testUser())
	require.True(t, s.IsActive())
	got, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, testUser(), got)

	_, stored := eph.Get(impersonation.Key)
	require.True(t, stored)

	s.Stop()
	require.False(t, s.IsActive())
	_, ok = s.Current()
	require.False(t, ok)
	_, stored = eph.Get(impersonation.Key)
	require.False(t, stored)
}

func TestStartReplacesExistingRecord(t *testing.T) {
	s := impersonation.New(memory.New())
	s.Start(testUser())

	other := testUser()
	other.ID = 8
	other.Email = "bob@example.com"
	s.Start(other)

	got, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, int64(8), got.ID)
}

func TestRecordSurvivesReload(t *testing.T) {
	eph := memory.New()
	impersonation.New(eph).Start(testUser())

	reloaded := impersonation.New(eph)
	got, ok := reloaded.Current()
	require.True(t, ok)
	require.Equal(t, "ann@example.com", got.Email)
}

func TestCorruptRecordReadsAbsent(t *testing.T) {
	eph := memory.New()
	eph.Set(impersonation.Key, "{definitely not json")

	s := impersonation.New(eph)
	require.False(t, s.IsActive())
	_, ok := s.Current()
	require.False(t, ok)
}

func TestCorruptRecordIsLogged(t *testing.T) {
	eph := memory.New()
	eph.Set(impersonation.Key, "{definitely not json")

	var buf bytes.Buffer
	s := impersonation.New(eph, impersonation.WithLogger(zerolog.New(&buf).Level(zerolog.DebugLevel)))
	require.False(t, s.IsActive())
	require.Contains(t, buf.String(), "Ignoring corrupt impersonation record")
}
