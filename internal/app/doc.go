// Package app is the composition root of famigo.
//
// Run loads configuration, opens the log file and builds the components in
// dependency order:
//
//	config.Load ─> logger.Open
//	             ─> credential.FileStore ─> api.Client
//	             ─> session.Controller  (observes the client's 401s)
//	             ─> directory.Service   (optimistic favorites and reviews)
//	             ─> account.Service
//	             ─> loader              (reads into state.Store)
//	             ─> ui.Run              (blocks)
//
// Before the UI starts, a stored credential is verified while categories
// and the first spot page load. None of those failures is fatal: the UI
// opens with whatever arrived and shows the last error.
//
// A background refresher re-runs the last successful search. It backs off
// while the backend keeps failing so the list recovers on its own once the
// server is reachable again.
//
// Pending optimistic mutations are allowed to settle before Run returns.
package app
