// Package ticktick provides a client for the TickTick task API (v2).
//
// The client exposes one method per upstream operation:
//   - Tasks: list, get, create, update, delete, search
//   - Projects: list
//
// Every call obtains a bearer token from the injected TokenSource and
// resolves transient failures locally:
//   - HTTP 401: exactly one forced token refresh followed by one retry; a
//     second 401 surfaces AuthError.
//   - HTTP 429: backoff for the Retry-After duration (or a configured
//     default) up to a small fixed bound, then RateLimitError.
//   - Network timeout: one retry under the same backoff policy, then
//     TimeoutError.
//
// Everything else propagates unchanged as a typed error: UpstreamError for
// other non-2xx responses (carrying status and body), ParseError for
// malformed payloads. The package also defines ValidationError, which the
// layers above return for bad caller input before any network call.
package ticktick
