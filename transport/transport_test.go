package transport_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fw-platform/wish-console/notify"
	"github.com/fw-platform/wish-console/session"
	"github.com/fw-platform/wish-console/transport"
	"github.com/stretchr/testify/require"
)

// stubTokens is a TokenProvider with scripted refresh results
type stubTokens struct {
	lock         sync.Mutex
	token        string
	refreshTo    string
	refreshErr   error
	refreshCalls int
	logouts      []string
}

func (s *stubTokens) AccessToken() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.token
}

func (s *stubTokens) Refresh(context.Context) (session.Session, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.refreshCalls++
	if s.refreshErr != nil {
		// The manager forces logout itself when a refresh is rejected
		s.logouts = append(s.logouts, "refresh failed")
		s.token = ""
		return session.Session{}, s.refreshErr
	}
	s.token = s.refreshTo
	return session.Session{AccessToken: s.refreshTo}, nil
}

func (s *stubTokens) ForceLogout(reason string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.logouts = append(s.logouts, reason)
	s.token = ""
}

// backend records the bearer token and body of each request and replies
// with the scripted statuses in order
type backend struct {
	lock     sync.Mutex
	statuses []int
	auths    []string
	bodies   []string
	ids      []string
}

func (b *backend) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	b.lock.Lock()
	b.auths = append(b.auths, r.Header.Get("Authorization"))
	b.bodies = append(b.bodies, string(body))
	b.ids = append(b.ids, r.Header.Get(transport.HeaderRequestID))
	status := http.StatusOK
	if len(b.statuses) > 0 {
		status = b.statuses[0]
		b.statuses = b.statuses[1:]
	}
	b.lock.Unlock()

	w.WriteHeader(status)
	_, _ = w.Write([]byte(http.StatusText(status)))
}

func setup(t *testing.T, tokens *stubTokens, statuses ...int) (*backend, *http.Client, string) {
	t.Helper()

	b := &backend{statuses: statuses}
	srv := httptest.NewServer(http.HandlerFunc(b.handler))
	t.Cleanup(srv.Close)

	return b, &http.Client{Transport: transport.New(tokens)}, srv.URL
}

func TestAttachesBearerToken(t *testing.T) {
	tokens := &stubTokens{token: "tok-1"}
	b, client, url := setup(t, tokens)

	resp, err := client.Get(url + "/users/me")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"Bearer tok-1"}, b.auths)
	require.NotEmpty(t, b.ids[0])
}

func TestNoTokenNoHeader(t *testing.T) {
	tokens := &stubTokens{}
	b, client, url := setup(t, tokens)

	resp, err := client.Get(url + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, []string{""}, b.auths)
}

func TestUnauthorizedRefreshesAndRetriesOnce(t *testing.T) {
	tokens := &stubTokens{token: "old", refreshTo: "new"}
	b, client, url := setup(t, tokens, http.StatusUnauthorized, http.StatusOK)

	resp, err := client.Post(url+"/auth/change-password", "application/json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, tokens.refreshCalls)
	require.Equal(t, []string{"Bearer old", "Bearer new"}, b.auths)
	require.Equal(t, []string{`{"a":1}`, `{"a":1}`}, b.bodies, "body must be replayed on retry")
	require.Equal(t, b.ids[0], b.ids[1], "retry keeps the request id")
}

func TestSecondUnauthorizedIsNotRetried(t *testing.T) {
	tokens := &stubTokens{token: "old", refreshTo: "new"}
	b, client, url := setup(t, tokens, http.StatusUnauthorized, http.StatusUnauthorized, http.StatusOK)

	resp, err := client.Get(url + "/users/me")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, 1, tokens.refreshCalls)
	require.Len(t, b.auths, 2)
	require.Empty(t, tokens.logouts)
}

func TestRefreshFailureReturnsOriginalUnauthorized(t *testing.T) {
	tokens := &stubTokens{token: "old", refreshErr: errors.New("refresh rejected")}
	b, client, url := setup(t, tokens, http.StatusUnauthorized)

	resp, err := client.Get(url + "/users/me")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, http.StatusText(http.StatusUnauthorized), string(body))
	require.Len(t, b.auths, 1)
	require.Equal(t, []string{"refresh failed"}, tokens.logouts)
}

func TestForbiddenForcesLogoutWithoutRefresh(t *testing.T) {
	tokens := &stubTokens{token: "tok", refreshTo: "new"}
	b, client, url := setup(t, tokens, http.StatusForbidden)

	resp, err := client.Get(url + "/schedulers")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, 0, tokens.refreshCalls)
	require.Equal(t, []string{transport.ForcedLogoutForbidden}, tokens.logouts)
	require.Len(t, b.auths, 1)
}

func TestOtherStatusesPassThrough(t *testing.T) {
	tokens := &stubTokens{token: "tok"}
	_, client, url := setup(t, tokens, http.StatusInternalServerError)

	resp, err := client.Get(url + "/events")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, 0, tokens.refreshCalls)
	require.Empty(t, tokens.logouts)
}

func TestTokenChangedInFlightRetriesWithoutRefresh(t *testing.T) {
	tokens := &stubTokens{token: "old"}
	var b *backend
	b = &backend{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.lock.Lock()
		b.auths = append(b.auths, r.Header.Get("Authorization"))
		first := len(b.auths) == 1
		b.lock.Unlock()
		if first {
			// Another request refreshed the session meanwhile
			tokens.lock.Lock()
			tokens.token = "fresh"
			tokens.lock.Unlock()
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: transport.New(tokens)}
	resp, err := client.Get(srv.URL + "/users/me")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 0, tokens.refreshCalls)
	require.Equal(t, []string{"Bearer old", "Bearer fresh"}, b.auths)
}

func TestLoadingTracksInFlight(t *testing.T) {
	loading := &notify.Loading{}
	seen := make(chan bool, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- loading.Active()
	}))
	defer srv.Close()

	client := &http.Client{Transport: transport.New(&stubTokens{}, transport.WithLoading(loading))}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.True(t, <-seen)
	require.False(t, loading.Active())
}
