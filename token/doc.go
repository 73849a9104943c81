// Package token inspects and issues the bearer tokens exchanged with the Auth
// API.
//
// Clients treat access tokens as opaque, but the Peer Bonus backend issues
// JWTs; [Inspect] reads their claims without verifying the signature so the
// session manager can skip a network round-trip for a token that has already
// expired. [Manager] signs and verifies tokens and is used by the in-process
// Auth API.
package token
