package zalo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/zalo-lead-notifier/pkg/logging"
)

var testNow = time.Date(2025, 10, 4, 5, 18, 37, 0, time.UTC)

type oauthStub struct {
	server *httptest.Server
	calls  atomic.Int32
}

func newOAuthStub(t *testing.T, handler http.HandlerFunc) *oauthStub {
	t.Helper()
	stub := &oauthStub{}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func newTestManager(store CredentialStore, oauthURL string) *TokenManager {
	return NewTokenManager(store, TokenManagerConfig{
		App:      AppIdentity{AppID: "app-1", AppSecret: "secret-1"},
		OAuthURL: oauthURL,
		Logger:   logging.Discard(),
		Now:      func() time.Time { return testNow },
	})
}

func okRefresh(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"access_token":"new-access","refresh_token":"new-refresh","expires_in":"90000"}`)
}

func TestValidAccessTokenMissing(t *testing.T) {
	stub := newOAuthStub(t, okRefresh)
	mgr := newTestManager(NewMemoryCredentialStore(Credentials{}), stub.server.URL)

	_, err := mgr.ValidAccessToken(context.Background())
	require.ErrorIs(t, err, ErrTokenMissing)
	var tokErr *TokenError
	require.ErrorAs(t, err, &tokErr)
	assert.Equal(t, TokenMissing, tokErr.Kind)
	assert.Zero(t, stub.calls.Load())
}

func TestValidAccessTokenWithoutExpiryIsReturnedAsIs(t *testing.T) {
	stub := newOAuthStub(t, okRefresh)
	mgr := newTestManager(NewMemoryCredentialStore(Credentials{AccessToken: "tok", RefreshToken: "ref"}), stub.server.URL)

	token, err := mgr.ValidAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	assert.Zero(t, stub.calls.Load())
}

func TestValidAccessTokenRefreshBoundary(t *testing.T) {
	tests := []struct {
		name        string
		remaining   time.Duration
		wantRefresh bool
	}{
		{"well before buffer", 24 * time.Hour, false},
		{"one second outside buffer", 301 * time.Second, false},
		{"exactly at buffer", 300 * time.Second, true},
		{"inside buffer", 10 * time.Second, true},
		{"expiring now", 0, true},
		{"expired an hour ago", -time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newOAuthStub(t, okRefresh)
			store := NewMemoryCredentialStore(Credentials{
				AccessToken:  "old-access",
				RefreshToken: "old-refresh",
				ExpiresAt:    testNow.Add(tt.remaining),
			})
			mgr := newTestManager(store, stub.server.URL)

			token, err := mgr.ValidAccessToken(context.Background())
			require.NoError(t, err)
			if tt.wantRefresh {
				assert.Equal(t, int32(1), stub.calls.Load())
				assert.Equal(t, "new-access", token)
			} else {
				assert.Zero(t, stub.calls.Load())
				assert.Equal(t, "old-access", token)
			}
		})
	}
}

func TestRefreshRequestAndPersistence(t *testing.T) {
	stub := newOAuthStub(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("secret_key"); got != "secret-1" {
			t.Errorf("unexpected secret_key header %q", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("refresh_token") != "old-refresh" || r.PostForm.Get("app_id") != "app-1" || r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		fmt.Fprint(w, `{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600}`)
	})
	store := NewMemoryCredentialStore(Credentials{AccessToken: "old-access", RefreshToken: "old-refresh", ExpiresAt: testNow.Add(-time.Hour)})
	mgr := newTestManager(store, stub.server.URL)

	token, err := mgr.ValidAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-access", token)

	creds, _ := store.Load(context.Background())
	assert.Equal(t, Credentials{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		ExpiresAt:    testNow.Add(time.Hour),
	}, creds)
	assert.Equal(t, 1, store.Saves())
}

func TestRefreshDefaultsExpiresIn(t *testing.T) {
	stub := newOAuthStub(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"a2","refresh_token":"r2"}`)
	})
	store := NewMemoryCredentialStore(Credentials{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: testNow})
	mgr := newTestManager(store, stub.server.URL)

	_, err := mgr.ValidAccessToken(context.Background())
	require.NoError(t, err)
	creds, _ := store.Load(context.Background())
	assert.Equal(t, testNow.Add(7776000*time.Second), creds.ExpiresAt)
}

func TestRefreshMissingFieldsLeavesStateUnchanged(t *testing.T) {
	bodies := map[string]string{
		"no access token":  `{"refresh_token":"r2","expires_in":3600}`,
		"no refresh token": `{"access_token":"a2","expires_in":3600}`,
		"empty tokens":     `{"access_token":"","refresh_token":"","expires_in":3600}`,
		"provider error":   `{"error":-14014,"error_name":"Invalid refresh token"}`,
		"not json":         `<html>oops</html>`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			stub := newOAuthStub(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			})
			initial := Credentials{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: testNow.Add(time.Minute)}
			store := NewMemoryCredentialStore(initial)
			mgr := newTestManager(store, stub.server.URL)

			_, err := mgr.ValidAccessToken(context.Background())
			var tokErr *TokenError
			require.ErrorAs(t, err, &tokErr)
			assert.Equal(t, TokenInvalidResponse, tokErr.Kind)
			assert.Equal(t, body, tokErr.Body)

			creds, _ := store.Load(context.Background())
			assert.Equal(t, initial, creds)
			assert.Zero(t, store.Saves())
		})
	}
}

func TestRefreshFailureOnExpiredTokenIsUnavailable(t *testing.T) {
	stub := newOAuthStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `bad gateway`)
	})
	store := NewMemoryCredentialStore(Credentials{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: testNow.Add(-time.Hour)})
	mgr := newTestManager(store, stub.server.URL)

	_, err := mgr.ValidAccessToken(context.Background())
	require.ErrorIs(t, err, ErrTokenUnavailable)
	require.ErrorIs(t, err, ErrTokenHTTP)

	var inner *TokenError
	require.True(t, errors.As(errors.Unwrap(err), &inner))
	assert.Equal(t, http.StatusBadGateway, inner.StatusCode)
	assert.Equal(t, "bad gateway", inner.Body)
}

func TestRefreshHTTPErrorBeforeExpiry(t *testing.T) {
	stub := newOAuthStub(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store := NewMemoryCredentialStore(Credentials{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: testNow.Add(2 * time.Minute)})
	mgr := newTestManager(store, stub.server.URL)

	_, err := mgr.ValidAccessToken(context.Background())
	require.ErrorIs(t, err, ErrTokenHTTP)
	assert.NotErrorIs(t, err, ErrTokenUnavailable)
}

func TestRefreshNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	store := NewMemoryCredentialStore(Credentials{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: testNow.Add(time.Minute)})
	mgr := newTestManager(store, url)

	_, err := mgr.ValidAccessToken(context.Background())
	require.ErrorIs(t, err, ErrTokenNetwork)
}

func TestRefreshWithoutCredentialsMakesNoCall(t *testing.T) {
	stub := newOAuthStub(t, okRefresh)
	store := NewMemoryCredentialStore(Credentials{AccessToken: "a1", ExpiresAt: testNow.Add(time.Minute)})
	mgr := newTestManager(store, stub.server.URL)

	_, err := mgr.ValidAccessToken(context.Background())
	require.ErrorIs(t, err, ErrTokenMissing)
	assert.Zero(t, stub.calls.Load())

	noSecret := NewTokenManager(NewMemoryCredentialStore(Credentials{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: testNow.Add(-time.Minute)}), TokenManagerConfig{
		App:      AppIdentity{AppID: "app-1"},
		OAuthURL: stub.server.URL,
		Logger:   logging.Discard(),
		Now:      func() time.Time { return testNow },
	})
	_, err = noSecret.ValidAccessToken(context.Background())
	require.ErrorIs(t, err, ErrTokenUnavailable)
	require.ErrorIs(t, err, ErrTokenMissing)
	assert.Zero(t, stub.calls.Load())
}

type failingSaveStore struct {
	*MemoryCredentialStore
}

func (s failingSaveStore) Save(ctx context.Context, creds Credentials) error {
	return errors.New("disk full")
}

func TestRefreshReturnsTokenWhenSaveFails(t *testing.T) {
	stub := newOAuthStub(t, okRefresh)
	store := failingSaveStore{NewMemoryCredentialStore(Credentials{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: testNow.Add(-time.Hour)})}
	mgr := newTestManager(store, stub.server.URL)

	token, err := mgr.ValidAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-access", token)
}

type countingStore struct {
	*MemoryCredentialStore
	loads atomic.Int32
}

func (s *countingStore) Load(ctx context.Context) (Credentials, error) {
	s.loads.Add(1)
	return s.MemoryCredentialStore.Load(ctx)
}

func TestConcurrentRefreshIsSingleFlight(t *testing.T) {
	const callers = 8
	release := make(chan struct{})
	stub := newOAuthStub(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		okRefresh(w, r)
	})
	store := &countingStore{MemoryCredentialStore: NewMemoryCredentialStore(Credentials{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: testNow.Add(-time.Hour)})}
	mgr := newTestManager(store, stub.server.URL)

	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = mgr.ValidAccessToken(context.Background())
		}(i)
	}

	// every caller has read the stale triple and the flight leader has
	// re-read it before the provider answers
	require.Eventually(t, func() bool { return store.loads.Load() >= callers+1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "new-access", tokens[i])
	}
	assert.Equal(t, int32(1), stub.calls.Load())
	assert.Equal(t, 1, store.Saves())
}

func TestCancelledCallerDoesNotAbortSharedRefresh(t *testing.T) {
	release := make(chan struct{})
	stub := newOAuthStub(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		okRefresh(w, r)
	})
	store := &countingStore{MemoryCredentialStore: NewMemoryCredentialStore(Credentials{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: testNow.Add(-time.Hour)})}
	mgr := newTestManager(store, stub.server.URL)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	defer cancelLeader()
	leaderErr := make(chan error, 1)
	go func() {
		_, err := mgr.ValidAccessToken(leaderCtx)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return stub.calls.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		token string
		err   error
	}
	joined := make(chan result, 1)
	go func() {
		token, err := mgr.ValidAccessToken(context.Background())
		joined <- result{token, err}
	}()
	// leader load, flight load, joiner load
	require.Eventually(t, func() bool { return store.loads.Load() >= 3 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	cancelLeader()
	err := <-leaderErr
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	res := <-joined
	require.NoError(t, res.err)
	assert.Equal(t, "new-access", res.token)
	assert.Equal(t, int32(1), stub.calls.Load())
	assert.Equal(t, 1, store.Saves())
}

func TestFlexSeconds(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantSet bool
	}{
		{`3600`, 3600, true},
		{`"3600"`, 3600, true},
		{`null`, 0, false},
		{`""`, 0, false},
		{`0`, 0, false},
	}
	for _, tt := range tests {
		var f flexSeconds
		require.NoError(t, f.UnmarshalJSON([]byte(tt.raw)), tt.raw)
		assert.Equal(t, tt.want, f.value, tt.raw)
		assert.Equal(t, tt.wantSet, f.set, tt.raw)
	}
	var f flexSeconds
	assert.Error(t, f.UnmarshalJSON([]byte(`"soon"`)))
}
