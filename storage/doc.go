// Package storage provides the persistent client storage used by the session
// manager: a small key-value [Store] surviving process restarts, plus the
// compact binary encoding of the cached user [Profile].
//
// # Backends
//
// [MemoryStore] keeps values in process memory (tests, ephemeral clients).
// [FileStore] keeps a single YAML document under the user's config directory.
// [RedisStore] keeps values in Redis under a key prefix, for clients that
// share a session across hosts.
//
// # Architecture boundaries
//
// This package owns raw bytes and the profile encoding. It does NOT interpret
// bearer tokens, call the Auth API, or decide whether a session is valid; those
// responsibilities belong to the Manager in the root package.
//
// # What this package must NOT do
//
//   - Import the root package, authapi, or token (no upward imports).
//   - Log or return stored token values inside error messages.
package storage
