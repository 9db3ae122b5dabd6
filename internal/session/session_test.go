package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famigo/famigo/internal/api"
	"github.com/famigo/famigo/internal/apierr"
	"github.com/famigo/famigo/internal/credential"
)

type backend struct {
	mu         sync.Mutex
	meStatus   int
	meCalls    int
	favCalls   int
	favHeld    chan struct{} // signalled when a /favorites request arrives
	favRelease chan struct{}
}

func (b *backend) favoritesCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.favCalls
}

func (b *backend) handler(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/auth/login":
		var body api.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "bad credentials"})
			return
		}
		writeJSON(w, http.StatusOK, api.AuthResponse{
			AccessToken: "tok-" + body.Email,
			User:        api.User{ID: 7, DisplayName: "Hana", Email: body.Email},
		})
	case "/auth/register":
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"errorCode":   "VALIDATION_ERROR",
			"message":     "Validation failed",
			"fieldErrors": []map[string]string{{"field": "email", "message": "already registered"}},
		})
	case "/auth/me":
		b.mu.Lock()
		b.meCalls++
		status := b.meStatus
		b.mu.Unlock()
		if status != 0 && status != http.StatusOK {
			writeJSON(w, status, map[string]string{"message": "nope"})
			return
		}
		writeJSON(w, http.StatusOK, api.User{ID: 7, Name: "hana", Email: "hana@example.com"})
	case "/favorites":
		b.mu.Lock()
		b.favCalls++
		held, release := b.favHeld, b.favRelease
		b.mu.Unlock()
		if release != nil {
			held <- struct{}{}
			<-release
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "expired"})
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func setup(t *testing.T, token string, meStatus int) (*Controller, *api.Client, *credential.MemoryStore, *backend) {
	t.Helper()
	b := &backend{meStatus: meStatus}
	server := httptest.NewServer(http.HandlerFunc(b.handler))
	t.Cleanup(server.Close)

	store := credential.NewMemoryStore(token)
	client, err := api.NewClient(server.URL, store)
	require.NoError(t, err)
	return NewController(client, store), client, store, b
}

func TestNewController_InitialPhase(t *testing.T) {
	c, _, _, _ := setup(t, "", 0)
	assert.Equal(t, Anonymous, c.Snapshot().Phase)
	assert.True(t, c.Snapshot().Ready())

	c, _, _, _ = setup(t, "stored", 0)
	assert.Equal(t, Restoring, c.Snapshot().Phase)
	assert.False(t, c.Snapshot().Ready())
	assert.Nil(t, c.Snapshot().Principal)
}

func TestRefreshPrincipal_Restores(t *testing.T) {
	c, _, store, _ := setup(t, "stored", 0)

	require.NoError(t, c.RefreshPrincipal(context.Background()))

	snap := c.Snapshot()
	assert.Equal(t, Authenticated, snap.Phase)
	require.NotNil(t, snap.Principal)
	assert.Equal(t, int64(7), snap.Principal.ID)
	assert.Equal(t, "hana", snap.Principal.DisplayName)
	tok, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, "stored", tok)
}

func TestRefreshPrincipal_RejectedCredentialIsCleared(t *testing.T) {
	c, _, store, _ := setup(t, "stale", http.StatusUnauthorized)

	err := c.RefreshPrincipal(context.Background())
	require.ErrorIs(t, err, apierr.ErrAuthRequired)

	snap := c.Snapshot()
	assert.Equal(t, Anonymous, snap.Phase)
	assert.Nil(t, snap.Principal)
	_, ok := store.Get()
	assert.False(t, ok, "credential should be cleared")
}

func TestRefreshPrincipal_ServerFailureKeepsCredential(t *testing.T) {
	c, _, store, b := setup(t, "stored", http.StatusInternalServerError)

	err := c.RefreshPrincipal(context.Background())
	require.Error(t, err)
	assert.NotEqual(t, apierr.AuthRequired, apierr.KindOf(err))

	assert.Equal(t, Anonymous, c.Snapshot().Phase)
	tok, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, "stored", tok)

	b.mu.Lock()
	b.meStatus = http.StatusOK
	b.mu.Unlock()
	require.NoError(t, c.RefreshPrincipal(context.Background()))
	assert.Equal(t, Authenticated, c.Snapshot().Phase)
}

func TestRefreshPrincipal_ExpiredTokenSkipsNetwork(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "7",
		"exp": time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	b := &backend{}
	server := httptest.NewServer(http.HandlerFunc(b.handler))
	t.Cleanup(server.Close)
	store := credential.NewMemoryStore(token)
	client, err := api.NewClient(server.URL, store)
	require.NoError(t, err)
	c := NewController(client, store, WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }))

	err = c.RefreshPrincipal(context.Background())
	require.ErrorIs(t, err, apierr.ErrAuthRequired)
	assert.Equal(t, Anonymous, c.Snapshot().Phase)
	_, ok := store.Get()
	assert.False(t, ok)
	assert.Zero(t, b.meCalls)
}

func TestRefreshPrincipal_NoCredential(t *testing.T) {
	c, _, _, b := setup(t, "", 0)
	err := c.RefreshPrincipal(context.Background())
	require.ErrorIs(t, err, apierr.ErrAuthRequired)
	assert.Equal(t, Anonymous, c.Snapshot().Phase)
	assert.Zero(t, b.meCalls)
}

func TestLogin_SetsCredentialAndPrincipalTogether(t *testing.T) {
	c, _, store, _ := setup(t, "", 0)

	var seen []Snapshot
	unsubscribe := c.Subscribe(func(s Snapshot) { seen = append(seen, s) })
	defer unsubscribe()

	require.NoError(t, c.Login(context.Background(), " hana@example.com ", "secret"))

	tok, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, "tok-hana@example.com", tok)
	snap := c.Snapshot()
	assert.Equal(t, Authenticated, snap.Phase)
	require.NotNil(t, snap.Principal)
	assert.Equal(t, "Hana", snap.Principal.DisplayName)

	require.Len(t, seen, 1)
	assert.Equal(t, Authenticated, seen[0].Phase)
}

func TestLogin_FailureLeavesStateUnchanged(t *testing.T) {
	c, _, store, _ := setup(t, "", 0)

	err := c.Login(context.Background(), "hana@example.com", "wrong")
	require.ErrorIs(t, err, apierr.ErrAuthRequired)
	assert.Equal(t, Anonymous, c.Snapshot().Phase)
	_, ok := store.Get()
	assert.False(t, ok)
}

func TestRegister_ValidationFailureCarriesFields(t *testing.T) {
	c, _, _, _ := setup(t, "", 0)

	err := c.Register(context.Background(), api.RegisterRequest{
		DisplayName: "Hana", Email: "hana@example.com", Password: "secret1", PasswordConfirm: "secret1",
	})
	require.ErrorIs(t, err, apierr.ErrValidation)
	de, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, "already registered", de.FieldErrors().First("email"))
	assert.Equal(t, Anonymous, c.Snapshot().Phase)
}

func TestLogout_ClearsEverything(t *testing.T) {
	c, _, store, _ := setup(t, "", 0)
	require.NoError(t, c.Login(context.Background(), "hana@example.com", "secret"))

	c.Logout()

	snap := c.Snapshot()
	assert.Equal(t, Anonymous, snap.Phase)
	assert.Nil(t, snap.Principal)
	_, ok := store.Get()
	assert.False(t, ok)
}

// A 401 on any authenticated call demotes the session.
func TestAuthRequiredOnOtherCallDemotesSession(t *testing.T) {
	c, client, store, b := setup(t, "", 0)
	require.NoError(t, c.Login(context.Background(), "hana@example.com", "secret"))

	var last Snapshot
	c.Subscribe(func(s Snapshot) { last = s })

	_, err := client.Favorites(context.Background())
	require.ErrorIs(t, err, apierr.ErrAuthRequired)

	assert.Equal(t, Anonymous, c.Snapshot().Phase)
	assert.Equal(t, Anonymous, last.Phase)
	_, ok := store.Get()
	assert.False(t, ok)
	require.Equal(t, 1, b.favoritesCalls())

	// With the credential gone the next authenticated call never leaves
	// the process.
	_, err = client.Favorites(context.Background())
	require.ErrorIs(t, err, apierr.ErrAuthRequired)
	assert.Equal(t, 1, b.favoritesCalls())
	assert.Equal(t, Anonymous, c.Snapshot().Phase)
}

// A 401 for a request that carried an older token must not sign out the
// session that replaced it while the request was in flight.
func TestAuthRequiredForReplacedTokenKeepsNewSession(t *testing.T) {
	c, client, store, b := setup(t, "", 0)
	ctx := context.Background()
	require.NoError(t, c.Login(ctx, "old@example.com", "secret"))

	held, release := make(chan struct{}, 1), make(chan struct{})
	b.mu.Lock()
	b.favHeld, b.favRelease = held, release
	b.mu.Unlock()

	errc := make(chan error, 1)
	go func() {
		_, err := client.Favorites(ctx)
		errc <- err
	}()
	<-held

	c.Logout()
	require.NoError(t, c.Login(ctx, "hana@example.com", "secret"))
	close(release)
	require.ErrorIs(t, <-errc, apierr.ErrAuthRequired)

	snap := c.Snapshot()
	assert.Equal(t, Authenticated, snap.Phase)
	require.NotNil(t, snap.Principal)
	token, ok := store.Get()
	assert.True(t, ok)
	assert.Equal(t, "tok-hana@example.com", token)
}

func TestUpdatePrincipal(t *testing.T) {
	c, _, _, _ := setup(t, "", 0)
	c.UpdatePrincipal(api.User{ID: 1, DisplayName: "ignored"})
	assert.Nil(t, c.Snapshot().Principal)

	require.NoError(t, c.Login(context.Background(), "hana@example.com", "secret"))
	c.UpdatePrincipal(api.User{ID: 7, DisplayName: "Hana S."})
	assert.Equal(t, "Hana S.", c.Snapshot().Principal.DisplayName)
}

func TestSnapshotInvariantUnderConcurrency(t *testing.T) {
	c, _, _, _ := setup(t, "", 0)

	var violations sync.Map
	c.Subscribe(func(s Snapshot) {
		if (s.Phase == Authenticated) != (s.Principal != nil) {
			violations.Store(s.Version, s)
		}
	})

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if i%2 == 0 {
					_ = c.Login(context.Background(), "hana@example.com", "secret")
				} else {
					c.Logout()
				}
				s := c.Snapshot()
				if (s.Phase == Authenticated) != (s.Principal != nil) {
					violations.Store(s.Version, s)
				}
			}
		}()
	}
	wg.Wait()

	count := 0
	violations.Range(func(any, any) bool { count++; return true })
	assert.Zero(t, count)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	c, _, _, _ := setup(t, "", 0)
	calls := 0
	unsubscribe := c.Subscribe(func(Snapshot) { calls++ })
	c.Logout()
	unsubscribe()
	c.Logout()
	assert.Equal(t, 1, calls)
}
