// Package graphql is a minimal GraphQL-over-HTTP client for the Peer Bonus
// backend. Requests are POSTed as {"query", "variables"} JSON; a response
// carrying an errors array is returned as *Error.
package graphql
