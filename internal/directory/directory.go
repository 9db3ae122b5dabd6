// Package directory applies favorite and review changes optimistically.
package directory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/famigo/famigo/internal/api"
	"github.com/famigo/famigo/internal/apierr"
	"github.com/famigo/famigo/internal/optimistic"
)

// Backend is the part of the API the directory mutates through.
type Backend interface {
	AddFavorite(ctx context.Context, spotID int64) error
	RemoveFavorite(ctx context.Context, spotID int64) error
	Favorites(ctx context.Context) ([]api.Spot, error)
	Reviews(ctx context.Context, spotID int64) ([]api.Review, error)
	CreateReview(ctx context.Context, spotID int64, body api.ReviewRequest) (api.Review, bool, error)
	UpdateReview(ctx context.Context, spotID, reviewID int64, body api.ReviewRequest) (api.Review, bool, error)
	DeleteReview(ctx context.Context, spotID, reviewID int64) error
}

var _ Backend = (*api.Client)(nil)

const favoritesList = "favorites"

// Service owns the optimistically updated parts of the directory: favorite
// flags, the favorites list and per-spot reviews.
type Service struct {
	backend Backend
	log     zerolog.Logger
	now     func() time.Time

	favorites *optimistic.Coordinator[int64, bool]
	list      *optimistic.Coordinator[string, []api.Spot]
	reviews   *optimistic.Coordinator[int64, []api.Review]

	placeholder atomic.Int64
	posted      sync.Map // placeholder ID -> server ID
}

// Option customizes a Service.
type Option func(*config)

type config struct {
	log     zerolog.Logger
	onError func(error)
	now     func() time.Time
}

// WithLogger sets the service logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) { c.log = log }
}

// WithErrorHandler receives each failed mutation's error once, after the
// rollback is visible.
func WithErrorHandler(fn func(error)) Option {
	return func(c *config) { c.onError = fn }
}

// WithClock overrides the timestamp given to placeholder reviews.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// NewService wires the coordinators to backend.
func NewService(backend Backend, opts ...Option) *Service {
	cfg := config{log: zerolog.Nop(), now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	report := func(err error) {
		if cfg.onError != nil {
			cfg.onError(err)
		}
	}
	log := cfg.log.With().Str("component", "directory").Logger()

	return &Service{
		backend: backend,
		log:     log,
		now:     cfg.now,
		favorites: optimistic.New(
			optimistic.WithLogger[int64, bool](log),
			optimistic.WithErrorHandler[int64, bool](func(_ int64, err error) { report(err) }),
		),
		list: optimistic.New(
			optimistic.WithLogger[string, []api.Spot](log),
			optimistic.WithErrorHandler[string, []api.Spot](func(_ string, err error) { report(err) }),
		),
		reviews: optimistic.New(
			optimistic.WithLogger[int64, []api.Review](log),
			optimistic.WithErrorHandler[int64, []api.Review](func(_ int64, err error) { report(err) }),
		),
	}
}

// SeedSpots records the server's favorite flags for spots.
func (s *Service) SeedSpots(spots []api.Spot) {
	for _, spot := range spots {
		s.favorites.Set(spot.ID, bool(spot.IsFavorite))
	}
}

// IsFavorite returns the locally visible favorite flag.
func (s *Service) IsFavorite(spotID int64) bool {
	v, _ := s.favorites.Get(spotID)
	return v
}

// ToggleFavorite flips the favorite flag at once and sends the matching
// add or remove request.
func (s *Service) ToggleFavorite(ctx context.Context, spotID int64) *optimistic.Mutation[bool] {
	var want bool
	return s.favorites.Apply(ctx, spotID,
		func(cur bool) bool {
			want = !cur
			return want
		},
		func(ctx context.Context) error {
			if want {
				return s.backend.AddFavorite(ctx, spotID)
			}
			return s.backend.RemoveFavorite(ctx, spotID)
		},
	)
}

// LoadFavorites fetches the favorites list and marks every entry favorite.
func (s *Service) LoadFavorites(ctx context.Context) ([]api.Spot, error) {
	spots, err := s.backend.Favorites(ctx)
	if err != nil {
		return nil, err
	}
	for i := range spots {
		spots[i].IsFavorite = true
	}
	s.list.Set(favoritesList, spots)
	s.SeedSpots(spots)
	return spots, nil
}

// FavoriteList returns the locally visible favorites list.
func (s *Service) FavoriteList() []api.Spot {
	v, _ := s.list.Get(favoritesList)
	return v
}

// RemoveFromFavorites drops a spot from the favorites list at once and
// sends the remove request. The spot's flag follows once the server agrees.
func (s *Service) RemoveFromFavorites(ctx context.Context, spotID int64) *optimistic.Mutation[[]api.Spot] {
	return s.list.Apply(ctx, favoritesList,
		func(cur []api.Spot) []api.Spot {
			return slices.DeleteFunc(slices.Clone(cur), func(sp api.Spot) bool { return sp.ID == spotID })
		},
		func(ctx context.Context) error {
			if err := s.backend.RemoveFavorite(ctx, spotID); err != nil {
				return err
			}
			s.favorites.Set(spotID, false)
			return nil
		},
	)
}

// LoadReviews fetches a spot's reviews. The fetched list replaces the local
// one unless a review mutation for the spot is still pending.
func (s *Service) LoadReviews(ctx context.Context, spotID int64) ([]api.Review, error) {
	list, err := s.backend.Reviews(ctx, spotID)
	if err != nil {
		return nil, err
	}
	if !s.reviews.Set(spotID, list) {
		s.log.Debug().Int64("spot_id", spotID).Msg("review mutation pending, keeping local list")
	}
	return s.Reviews(spotID), nil
}

// Reviews returns the locally visible reviews of a spot.
func (s *Service) Reviews(spotID int64) []api.Review {
	v, _ := s.reviews.Get(spotID)
	return v
}

// CreateReview shows the review at the top of the list at once with a
// negative placeholder ID and posts it. The server's copy replaces the
// placeholder when it echoes one. On failure the placeholder is removed
// even if other review changes for the spot are still pending.
func (s *Service) CreateReview(ctx context.Context, spotID int64, author api.User, body api.ReviewRequest) *optimistic.Mutation[[]api.Review] {
	body.Comment = strings.TrimSpace(body.Comment)
	tempID := -s.placeholder.Add(1)
	stamp := s.now().UTC().Format(time.RFC3339)
	draft := api.Review{
		ID:        tempID,
		SpotID:    spotID,
		UserID:    author.ID,
		UserName:  author.Label(),
		Rating:    body.Rating,
		Comment:   body.Comment,
		VisitedAt: body.VisitedAt,
		CreatedAt: stamp,
		UpdatedAt: stamp,
	}
	return s.reviews.Apply(ctx, spotID,
		func(cur []api.Review) []api.Review {
			return append([]api.Review{draft}, cur...)
		},
		func(ctx context.Context) error {
			created, ok, err := s.backend.CreateReview(ctx, spotID, body)
			if err != nil {
				s.reviews.Reconcile(spotID, dropReview(tempID))
				return err
			}
			if ok {
				s.posted.Store(tempID, created.ID)
				s.reviews.Reconcile(spotID, replaceReview(tempID, created))
			}
			return nil
		},
	)
}

// UpdateReview rewrites a review in place at once and sends the update.
func (s *Service) UpdateReview(ctx context.Context, spotID, reviewID int64, body api.ReviewRequest) *optimistic.Mutation[[]api.Review] {
	body.Comment = strings.TrimSpace(body.Comment)
	stamp := s.now().UTC().Format(time.RFC3339)
	return s.reviews.Apply(ctx, spotID,
		func(cur []api.Review) []api.Review {
			out := slices.Clone(cur)
			for i := range out {
				if out[i].ID == reviewID {
					out[i].Rating = body.Rating
					out[i].Comment = body.Comment
					out[i].VisitedAt = body.VisitedAt
					out[i].UpdatedAt = stamp
				}
			}
			return out
		},
		func(ctx context.Context) error {
			id, err := s.serverID(reviewID)
			if err != nil {
				return err
			}
			updated, ok, err := s.backend.UpdateReview(ctx, spotID, id, body)
			if err != nil {
				return err
			}
			if ok {
				s.reviews.Reconcile(spotID, replaceReview(id, updated))
			}
			return nil
		},
	)
}

// DeleteReview hides a review at once and sends the delete.
func (s *Service) DeleteReview(ctx context.Context, spotID, reviewID int64) *optimistic.Mutation[[]api.Review] {
	return s.reviews.Apply(ctx, spotID,
		dropReview(reviewID),
		func(ctx context.Context) error {
			id, err := s.serverID(reviewID)
			if err != nil {
				return err
			}
			return s.backend.DeleteReview(ctx, spotID, id)
		},
	)
}

// OnFavoriteChange subscribes to favorite flag changes.
func (s *Service) OnFavoriteChange(fn func(spotID int64, favorite bool)) func() {
	return s.favorites.Subscribe(fn)
}

// ResetFavorites drops the cached favorites list, e.g. on sign-out. Flags
// are re-seeded by the next spot load.
func (s *Service) ResetFavorites() {
	s.list.Forget(favoritesList)
}

// Wait blocks until every pending mutation has settled.
func (s *Service) Wait() {
	s.favorites.Wait()
	s.list.Wait()
	s.reviews.Wait()
}

// serverID maps a placeholder review ID to the ID the server assigned. A
// placeholder whose create has not been echoed back cannot be addressed.
func (s *Service) serverID(reviewID int64) (int64, error) {
	if reviewID >= 0 {
		return reviewID, nil
	}
	if id, ok := s.posted.Load(reviewID); ok {
		return id.(int64), nil
	}
	return 0, apierr.ClassifyFields(nil, "This review has not been saved yet. Reload the spot and try again.")
}

func dropReview(id int64) func([]api.Review) []api.Review {
	return func(cur []api.Review) []api.Review {
		return slices.DeleteFunc(slices.Clone(cur), func(r api.Review) bool { return r.ID == id })
	}
}

func replaceReview(id int64, with api.Review) func([]api.Review) []api.Review {
	return func(cur []api.Review) []api.Review {
		out := slices.Clone(cur)
		for i := range out {
			if out[i].ID == id {
				out[i] = with
			}
		}
		return out
	}
}
