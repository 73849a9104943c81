// Package kudos is the Peer Bonus domain client: listing teammates, reading
// the kudos feed, sending kudos and reacting to them over GraphQL.
//
// The sender of every mutation is the logged-in user of the session; calls
// that need one fail with [ErrNotLoggedIn] otherwise.
package kudos
