// Package ui is the Bubble Tea front end of famigo.
//
// # Views
//
//   - Spots: keyword and category search over the directory
//   - Detail: one spot with its reviews
//   - Favorites: the signed-in user's saved spots
//   - Auth and Review: input forms
//
// # Data Flow
//
// The model never talks HTTP itself. Reads go through a Loader into
// state.Store; writes go through directory.Service, which applies them
// optimistically and settles them in the background. A tick pulls fresh
// snapshots from the store, the session controller and the directory so
// rollbacks show up without any extra wiring.
//
// Failures are shown by kind in the status line. An AuthRequired failure
// from any action opens the sign-in form and returns to the previous view
// once the user is signed in.
package ui
