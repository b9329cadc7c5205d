package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fw-platform/wish-console/internal/config"
	"github.com/fw-platform/wish-console/internal/devbackend"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail = "admin@example.com"
	password   = "console-test-pw"
)

type testFixture struct {
	backend *devbackend.Server
	dataDir string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	t.Setenv("ENV", "TEST")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("RATE_LIMIT", "0")
	t.Setenv("SEED_ADMIN_EMAIL", adminEmail)
	t.Setenv("SEED_USER_EMAIL", "user@example.com")
	t.Setenv("SEED_PASSWORD", password)
	t.Setenv("REDIS_URL", "")
	t.Setenv("STORAGE_PASSPHRASE", "")

	backend, err := devbackend.New(config.NewDevBackend())
	require.NoError(t, err)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	dataDir := t.TempDir()
	t.Setenv("API_URL", srv.URL+devbackend.APIPrefix)
	t.Setenv("DATA_FOLDER", dataDir)
	t.Setenv("RUNTIME_FOLDER", t.TempDir())

	return &testFixture{backend: backend, dataDir: dataDir}
}

// run executes one CLI invocation. Each run builds a fresh session stack
// from the stored files, like separate processes would.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCmd(&out, strings.NewReader(stdin))
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoginStatusLogout(t *testing.T) {
	setupTestFixture(t)

	out, err := run(t, "", "login", "--email", adminEmail, "--password", password)
	require.NoError(t, err)
	require.Contains(t, out, "Signed in as admin@example.com (ADMIN)")

	out, err = run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "State:    authenticated")
	require.Contains(t, out, "Scope:    ephemeral")

	out, err = run(t, "", "whoami")
	require.NoError(t, err)
	require.Contains(t, out, "Email:    admin@example.com")

	out, err = run(t, "", "whoami", "--offline")
	require.NoError(t, err)
	require.Contains(t, out, "Role:     ADMIN")

	out, err = run(t, "", "logout")
	require.NoError(t, err)
	require.Contains(t, out, "Signed out")

	out, err = run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "State:    logged out")
}

func TestLoginPromptsForPassword(t *testing.T) {
	setupTestFixture(t)

	out, err := run(t, password+"\n", "login", "-e", adminEmail)
	require.NoError(t, err)
	require.Contains(t, out, "Password: ")
	require.Contains(t, out, "Signed in as")
}

func TestLoginFailure(t *testing.T) {
	setupTestFixture(t)

	_, err := run(t, "", "login", "-e", adminEmail, "-p", "wrong-password")
	require.Error(t, err)

	_, err = run(t, "", "whoami")
	require.Error(t, err)
}

func TestRememberMeUsesDataFolder(t *testing.T) {
	f := setupTestFixture(t)

	_, err := run(t, "", "login", "-e", adminEmail, "-p", password, "--remember-me")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(f.dataDir, sessionFile))
	require.NoError(t, err)

	out, err := run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "Scope:    durable")
}

func TestImpersonateAndSwitchBack(t *testing.T) {
	setupTestFixture(t)

	_, err := run(t, "", "login", "-e", adminEmail, "-p", password)
	require.NoError(t, err)

	_, err = run(t, "", "impersonate", "abc")
	require.Error(t, err)

	out, err := run(t, "", "impersonate", "2", "--email", "user@example.com", "--name", "User")
	require.NoError(t, err)
	require.Contains(t, out, "Now viewing the console as user 2")

	out, err = run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "State:    impersonating")
	require.Contains(t, out, "Viewing:  User <user@example.com> (id 2)")

	out, err = run(t, "", "route", "/users")
	require.NoError(t, err)
	require.Contains(t, out, "/users redirects to /dashboard")

	out, err = run(t, "", "switch-back")
	require.NoError(t, err)
	require.Contains(t, out, "Returned to admin account.")

	out, err = run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "State:    authenticated")

	out, err = run(t, "", "route", "/users/7/edit")
	require.NoError(t, err)
	require.Contains(t, out, "/users/7/edit is allowed")
}

func TestPasswordReset(t *testing.T) {
	f := setupTestFixture(t)

	_, err := run(t, "", "password", "forgot", "-e", adminEmail)
	require.NoError(t, err)

	token := f.backend.Outbox().ResetToken(adminEmail)
	_, err = run(t, "", "password", "reset", "-e", adminEmail, "-t", token, "--new-password", "a-new-password")
	require.NoError(t, err)

	_, err = run(t, "", "login", "-e", adminEmail, "-p", "a-new-password")
	require.NoError(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version", "--short")
	require.NoError(t, err)
	require.Equal(t, "dev\n", out)
}
