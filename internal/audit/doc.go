// Package audit relays session lifecycle events to a sink without blocking
// the operation that produced them.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, logrus, no-op).
//   - [Dispatcher]: buffered async relay, drop-if-full or block-if-full.
//   - [Event]: one lifecycle record (type, user, outcome, metadata).
//
// # What this package must NOT do
//
//   - Decide which events to emit; that is the Manager's job.
//   - Import peerbonus or any sibling internal package.
//   - Record bearer tokens or passwords.
package audit
