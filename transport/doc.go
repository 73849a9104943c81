// Package transport provides an http.RoundTripper that attaches the session
// bearer token to outgoing requests and reports 401 answers back to the
// session owner.
//
// # Architecture boundaries
//
// The transport never clears or modifies session state itself. It reads the
// current token through [Session] and delegates invalidation to
// Session.HandleUnauthorized, which decides whether the 401 still applies.
package transport
