// Package optimistic applies local state changes ahead of server
// confirmation and reverts them when the server refuses.
//
// A Coordinator holds one value per key (a spot's favorite flag, a spot's
// review list). Apply swaps the value in immediately and runs the commit in
// the background; the returned Mutation settles as Committed or RolledBack.
// Commits for the same key go out one at a time in Apply order. Each failed
// mutation reverts only what it changed, so an older failure never
// overwrites a newer pending change.
package optimistic
