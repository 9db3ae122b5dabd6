package state

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/famigo/famigo/internal/api"
	"github.com/famigo/famigo/internal/apierr"
)

// Snapshot represents the latest directory data available to the UI.
type Snapshot struct {
	Spots               []api.Spot
	HasSpots            bool
	Filter              api.SpotFilter
	Categories          []api.Category
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive failed loads
}

// IsOffline returns true when the backend has been unreachable for multiple
// loads in a row.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2 && apierr.KindOf(s.LastError) == apierr.Transport
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// UpdateSpots records the result of a spot search. When err is non-nil the
// previous list is kept but the error is recorded for visibility.
func (s *Store) UpdateSpots(filter api.SpotFilter, spots []api.Spot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastUpdated = time.Now()
	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.ConsecutiveFailures++
		return
	}

	s.snapshot.Spots = slices.Clone(spots)
	s.snapshot.HasSpots = true
	s.snapshot.Filter = cloneFilter(filter)
	s.snapshot.LastError = nil
	s.snapshot.ConsecutiveFailures = 0
}

// SetCategories replaces the category list.
func (s *Store) SetCategories(categories []api.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Categories = slices.Clone(categories)
}

// SetFavorite updates one spot's flag in the stored list, keeping it in step
// with optimistic toggles.
func (s *Store) SetFavorite(spotID int64, favorite bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snapshot.Spots {
		if s.snapshot.Spots[i].ID == spotID {
			s.snapshot.Spots[i].IsFavorite = api.Flag(favorite)
		}
	}
}

// RecordError stores err as the latest failure without touching data.
func (s *Store) RecordError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.LastError = err
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Spots = slices.Clone(s.snapshot.Spots)
	snap.Categories = slices.Clone(s.snapshot.Categories)
	snap.Filter = cloneFilter(s.snapshot.Filter)
	if s.snapshot.LastError != nil {
		if de, ok := apierr.As(s.snapshot.LastError); ok {
			snap.LastError = de
		} else {
			snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
		}
	}
	return snap
}

func cloneFilter(f api.SpotFilter) api.SpotFilter {
	f.CategoryIDs = slices.Clone(f.CategoryIDs)
	f.Price = slices.Clone(f.Price)
	f.Age = slices.Clone(f.Age)
	f.Facilities = slices.Clone(f.Facilities)
	return f
}
