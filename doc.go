// Package peerbonus is the client-side session library for Peer Bonus, a
// peer-recognition app where teammates send each other kudos.
//
// The [Manager] owns the authentication lifecycle of one client process:
// it hydrates the session from persistent storage, logs in and registers
// against the Auth API, logs out, and exposes the result through accessors
// and [Manager.Subscribe]. Build one with [New] and pass it by reference to
// whatever needs it.
//
// # Architecture boundaries
//
// peerbonus is the public surface. It exposes [Manager], [Builder], [Config]
// and value types ([User], [Snapshot], [MetricsSnapshot]). Flow
// orchestration and audit dispatch live under internal/; the Auth API,
// storage backends, GraphQL and kudos clients are sibling packages.
//
// # What this package must NOT do
//
//   - Read session state back from storage outside hydration; memory is the
//     single source of truth and storage mirrors it.
//   - Log or audit bearer tokens or passwords.
//   - Import any sub-package that re-imports peerbonus (no import cycles).
//
// # Ordering contract
//
// Every transition that changes the token or user writes storage before
// memory, so a restart immediately after any transition hydrates to the
// same state. Logout supersedes in-flight operations: once Logout returns,
// no earlier Login or Register can re-establish a session.
package peerbonus
