// Package state holds the directory data shown by the UI.
//
// # Overview
//
// Store is the meeting point between background loads (spot searches,
// category lists) and the render loop. Loaders call UpdateSpots and
// SetCategories; the UI reads Snapshot on every frame.
//
// # Update Semantics
//
//	// Success: replace the list, clear the error
//	store.UpdateSpots(filter, spots, nil)
//
//	// Failure: keep the previous list, record the error
//	store.UpdateSpots(filter, nil, err)
//
// A failed search never blanks the list already on screen. Consecutive
// failures are counted; two or more Transport failures in a row mark the
// snapshot offline.
//
// Favorite flags in the list follow the optimistic coordinator through
// SetFavorite, so a toggle and its rollback both show up in the list view.
//
// # Concurrency
//
// Store uses a sync.RWMutex. Snapshot copies slices so callers may modify
// what they receive. The zero value is ready to use.
package state
