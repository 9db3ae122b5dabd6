// Package api is the request gateway for the Famigo REST backend.
//
// # Overview
//
// Every backend call goes through Client.Do (or the typed Fetch helper). The
// gateway resolves the path against the configured base URL, attaches the
// stored credential, encodes the optional JSON body, decodes the response,
// and turns every failure into an *apierr.Error.
//
// # Architecture
//
//   - client.go: Client, Request, Fetch and the round trip
//   - endpoints.go: one method per backend operation
//   - types.go: payloads mirroring the backend schema
//
// # Authentication
//
// Requests with RequireAuth fail with AuthRequired before any network I/O
// when no credential is stored. All other requests still carry a stored
// credential so that personalized fields such as Spot.IsFavorite are filled
// for signed-in users and left false for guests.
//
// When an authenticated call ends in AuthRequired the observers registered
// with OnAuthRequired run with the token the request carried. The session
// controller uses this to drop that credential and demote the session.
//
// # Responses
//
// 2xx responses are decoded as JSON. 204, 205 and empty bodies are "no
// content": Do leaves dest untouched and Fetch reports ok=false. Non-2xx
// responses and transport failures go through apierr.Classify and
// apierr.ClassifyTransport.
//
// # Retries
//
// The gateway never retries. Mutation endpoints are not idempotent (creating
// a review twice creates two reviews) so retry policy belongs to the caller.
//
// # Thread Safety
//
// Client is safe for concurrent use. A credential cleared while a request is
// in flight does not affect that request; it completes with the header it
// was sent with.
package api
