package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/famigo/famigo/internal/api"
	"github.com/famigo/famigo/internal/directory"
	"github.com/famigo/famigo/internal/state"
)

const (
	defaultRefreshInterval = 60 * time.Second
	maxBackoff             = 5 * time.Minute
)

// reader is the read-only slice of the API the loader uses.
type reader interface {
	Spots(ctx context.Context, filter api.SpotFilter) ([]api.Spot, error)
	Spot(ctx context.Context, id int64) (api.SpotDetail, error)
	Categories(ctx context.Context) ([]api.Category, error)
}

var _ reader = (*api.Client)(nil)

// loader fetches directory data into the store. Favorite flags from the
// server are seeded into the directory first, so a toggle still in flight
// keeps its local value.
type loader struct {
	client reader
	store  *state.Store
	dir    *directory.Service
	log    zerolog.Logger
}

func newLoader(client reader, store *state.Store, dir *directory.Service, log zerolog.Logger) *loader {
	return &loader{client: client, store: store, dir: dir, log: log.With().Str("component", "loader").Logger()}
}

// Search runs a spot search and publishes the result. On failure the
// previous list stays visible.
func (l *loader) Search(ctx context.Context, filter api.SpotFilter) error {
	spots, err := l.client.Spots(ctx, filter)
	if err != nil {
		l.store.UpdateSpots(filter, nil, err)
		l.log.Warn().Err(err).Str("keyword", filter.Keyword).Msg("spot search failed")
		return err
	}
	l.dir.SeedSpots(spots)
	for i := range spots {
		spots[i].IsFavorite = api.Flag(l.dir.IsFavorite(spots[i].ID))
	}
	l.store.UpdateSpots(filter, spots, nil)
	return nil
}

// LoadCategories refreshes the category list used by the filter.
func (l *loader) LoadCategories(ctx context.Context) error {
	cats, err := l.client.Categories(ctx)
	if err != nil {
		l.store.RecordError(err)
		l.log.Warn().Err(err).Msg("category load failed")
		return err
	}
	l.store.SetCategories(cats)
	return nil
}

// Detail fetches a spot and its reviews concurrently. A review failure is
// reported but does not hide the spot.
func (l *loader) Detail(ctx context.Context, spotID int64) (api.SpotDetail, error) {
	var detail api.SpotDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := l.client.Spot(gctx, spotID)
		if err != nil {
			return err
		}
		detail = d
		return nil
	})
	g.Go(func() error {
		if _, err := l.dir.LoadReviews(gctx, spotID); err != nil && gctx.Err() == nil {
			l.store.RecordError(err)
			l.log.Warn().Err(err).Int64("spot_id", spotID).Msg("review load failed")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		l.log.Warn().Err(err).Int64("spot_id", spotID).Msg("spot load failed")
		return api.SpotDetail{}, err
	}

	l.dir.SeedSpots([]api.Spot{detail.Spot})
	detail.IsFavorite = api.Flag(l.dir.IsFavorite(spotID))
	return detail, nil
}

// Bootstrap loads categories and the first page of spots concurrently.
// Failures are recorded in the store; the UI starts either way.
func (l *loader) Bootstrap(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error { return l.LoadCategories(ctx) })
	g.Go(func() error { return l.Search(ctx, api.SpotFilter{}) })
	_ = g.Wait()
}

// StartRefresher re-runs the last successful search in the background so
// the list recovers after the backend comes back. It backs off while loads
// keep failing and returns immediately.
func (l *loader) StartRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	go func() {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			snap := l.store.Snapshot()
			_ = l.Search(ctx, snap.Filter)
			timer.Reset(calculateBackoff(l.store.Snapshot().ConsecutiveFailures, interval))
		}
	}()
}

// calculateBackoff doubles the interval per consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
