package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famigo/famigo/internal/api"
	"github.com/famigo/famigo/internal/apierr"
	"github.com/famigo/famigo/internal/credential"
	"github.com/famigo/famigo/internal/directory"
	"github.com/famigo/famigo/internal/session"
	"github.com/famigo/famigo/internal/state"
)

type backend struct {
	mu          sync.Mutex
	spotsStatus int
	reviewsDown bool
	release     chan struct{}
}

func (b *backend) handler(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	spotsStatus, reviewsDown, release := b.spotsStatus, b.reviewsDown, b.release
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/spots":
		if spotsStatus != 0 {
			w.WriteHeader(spotsStatus)
			_, _ = w.Write([]byte(`{"message":"boom"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":1,"name":"River Park","isFavorite":0},{"id":2,"name":"Science Hall","isFavorite":"1"}]`))
	case r.URL.Path == "/categories":
		_, _ = w.Write([]byte(`[{"id":1,"name":"Parks"},{"id":2,"name":"Museums"}]`))
	case r.URL.Path == "/spots/1":
		_, _ = w.Write([]byte(`{"id":1,"name":"River Park","isFavorite":false,"parkingInfo":"free"}`))
	case r.URL.Path == "/spots/1/reviews":
		if reviewsDown {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"reviews unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":10,"spotId":1,"userId":3,"userName":"Ann","rating":5}]`))
	case r.URL.Path == "/spots/1/favorites":
		if release != nil {
			<-release
		}
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/favorites":
		_, _ = w.Write([]byte(`[{"id":2,"name":"Science Hall"}]`))
	default:
		http.NotFound(w, r)
	}
}

type fixture struct {
	backend *backend
	client  *api.Client
	creds   *credential.MemoryStore
	store   *state.Store
	dir     *directory.Service
	loader  *loader
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	b := &backend{}
	server := httptest.NewServer(http.HandlerFunc(b.handler))
	t.Cleanup(server.Close)

	creds := credential.NewMemoryStore(token)
	client, err := api.NewClient(server.URL, creds)
	require.NoError(t, err)
	store := &state.Store{}
	dir := directory.NewService(client, directory.WithErrorHandler(store.RecordError))
	t.Cleanup(dir.Wait)
	return &fixture{
		backend: b,
		client:  client,
		creds:   creds,
		store:   store,
		dir:     dir,
		loader:  newLoader(client, store, dir, zerolog.Nop()),
	}
}

func TestSearchPublishesAndSeedsFlags(t *testing.T) {
	f := newFixture(t, "")

	require.NoError(t, f.loader.Search(context.Background(), api.SpotFilter{Keyword: "park"}))

	snap := f.store.Snapshot()
	require.Len(t, snap.Spots, 2)
	assert.Equal(t, "park", snap.Filter.Keyword)
	assert.False(t, bool(snap.Spots[0].IsFavorite))
	assert.True(t, bool(snap.Spots[1].IsFavorite))
	assert.True(t, f.dir.IsFavorite(2))
}

func TestSearchKeepsPendingToggle(t *testing.T) {
	f := newFixture(t, "tok")
	release := make(chan struct{})
	f.backend.mu.Lock()
	f.backend.release = release
	f.backend.mu.Unlock()

	mut := f.dir.ToggleFavorite(context.Background(), 1)
	require.NoError(t, f.loader.Search(context.Background(), api.SpotFilter{}))

	snap := f.store.Snapshot()
	assert.True(t, bool(snap.Spots[0].IsFavorite), "server says false but the add is still in flight")

	close(release)
	require.NoError(t, mut.Wait(context.Background()))
	assert.True(t, f.dir.IsFavorite(1))
}

func TestSearchFailureKeepsPreviousList(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.loader.Search(context.Background(), api.SpotFilter{}))

	f.backend.mu.Lock()
	f.backend.spotsStatus = http.StatusInternalServerError
	f.backend.mu.Unlock()
	err := f.loader.Search(context.Background(), api.SpotFilter{Keyword: "zoo"})

	assert.ErrorIs(t, err, apierr.ErrInternal)
	snap := f.store.Snapshot()
	assert.Len(t, snap.Spots, 2)
	assert.Equal(t, "", snap.Filter.Keyword)
	assert.Equal(t, 1, snap.ConsecutiveFailures)
	assert.Equal(t, apierr.Internal, apierr.KindOf(snap.LastError))
}

func TestDetailLoadsSpotAndReviews(t *testing.T) {
	f := newFixture(t, "")

	detail, err := f.loader.Detail(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "free", detail.ParkingInfo)
	require.Len(t, f.dir.Reviews(1), 1)
	assert.Equal(t, "Ann", f.dir.Reviews(1)[0].UserName)
}

func TestDetailSurvivesReviewFailure(t *testing.T) {
	f := newFixture(t, "")
	f.backend.mu.Lock()
	f.backend.reviewsDown = true
	f.backend.mu.Unlock()

	detail, err := f.loader.Detail(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, "River Park", detail.Name)
	assert.Empty(t, f.dir.Reviews(1))
	assert.Equal(t, apierr.Internal, apierr.KindOf(f.store.Snapshot().LastError))
}

func TestDetailNotFound(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.loader.Detail(context.Background(), 99)

	assert.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestBootstrapLoadsCategoriesAndSpots(t *testing.T) {
	f := newFixture(t, "")

	f.loader.Bootstrap(context.Background())

	snap := f.store.Snapshot()
	assert.Len(t, snap.Categories, 2)
	assert.Len(t, snap.Spots, 2)
	assert.True(t, snap.HasSpots)
}

func TestWireFollowsTogglesAndSignOut(t *testing.T) {
	f := newFixture(t, "tok")
	sess := session.NewController(f.client, f.creds)
	wire(sess, f.creds, f.dir, f.store)
	ctx := context.Background()

	require.NoError(t, f.loader.Search(ctx, api.SpotFilter{}))
	require.NoError(t, f.dir.ToggleFavorite(ctx, 1).Wait(ctx))
	assert.True(t, bool(f.store.Snapshot().Spots[0].IsFavorite))

	_, err := f.dir.LoadFavorites(ctx)
	require.NoError(t, err)
	require.Len(t, f.dir.FavoriteList(), 1)

	sess.Logout()
	assert.Empty(t, f.dir.FavoriteList())
}

func TestStartRefresherRetriesLastSearch(t *testing.T) {
	f := newFixture(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.loader.StartRefresher(ctx, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return f.store.Snapshot().HasSpots
	}, time.Second, 10*time.Millisecond)
}

func TestCalculateBackoff(t *testing.T) {
	base := 60 * time.Second
	tests := []struct {
		name     string
		failures int
		want     time.Duration
	}{
		{"zero failures", 0, 60 * time.Second},
		{"negative failures", -1, 60 * time.Second},
		{"one failure", 1, 2 * time.Minute},
		{"two failures", 2, 4 * time.Minute},
		{"three failures capped", 3, maxBackoff},
		{"many failures capped", 40, maxBackoff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, calculateBackoff(tt.failures, base))
		})
	}
}
