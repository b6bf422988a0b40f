// Package auth owns the TickTick OAuth2 credential pair.
//
// The Store persists access/refresh tokens across restarts (JSON file or OS
// keyring), hands out non-expired access tokens with a safety margin, and
// serializes refreshes: at most one refresh grant is in flight at a time,
// and concurrent callers share its result. A rejected refresh token is
// fatal to the session and surfaces as a ticktick.AuthError; the operator
// must re-run the bootstrap flow (Bootstrap exchanges the one-time
// authorization code).
package auth
