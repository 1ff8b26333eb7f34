// Package credentials owns the access/refresh credential pair.
//
// The Session guarantees two things regardless of how many goroutines
// need a fresh credential concurrently:
//
//   - at most one refresh network call is in flight per process at any
//     time (single-flight coordination via golang.org/x/sync/singleflight)
//   - an access secret is never handed out inside its 5-minute safety
//     margin
//
// A refresh rejected by the backend burns the refresh secret: the session
// clears all stored credentials as a side effect and the caller must
// re-authenticate. Transient refresh failures are never cached - the next
// caller starts a fresh attempt.
//
// Credentials persist across restarts through a secrets.Store; the
// backend is reached through the narrow API interface, implemented here
// by RestAPI.
package credentials
