// Package authapi talks to the Peer Bonus Auth API: credential login,
// account registration and current-user lookup under /api/auth.
//
// [Client] is the HTTP implementation. [Local] implements the same contract
// in process (users kept in a storage.Store, tokens signed with the token
// package) for tests and offline use, and can serve it over HTTP via
// [Local.Handler].
//
// # Errors
//
// Every non-2xx answer becomes an [*Error] carrying the status code and the
// server's detail message. An [*Error] unwraps to one class sentinel
// ([ErrUnauthorized], [ErrBadRequest] or [ErrUnavailable]) so callers can
// branch with errors.Is and still show the message.
package authapi
