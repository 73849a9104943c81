// Package flows contains the orchestration for every session Manager
// operation.
//
// Each flow function (RunHydrate, RunLogin, RunRegister, RunLogout) accepts
// a typed dependency struct and returns results without side effects beyond
// those dependencies. The Manager builds the dependencies for one operation
// at a time, binding storage commits to the session epoch the operation
// started under.
//
// # Architecture boundaries
//
// Flows decide the order of Auth API calls and storage commits. They do NOT
// own the session state, the store, or the Auth API client; ownership stays
// with the Manager.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import peerbonus (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
