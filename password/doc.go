// Package password hashes credentials for the in-process Auth API and checks
// passwords against the Peer Bonus registration policy.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// # Architecture boundaries
//
// [CheckPolicy] mirrors the rules the registration form applies before any
// request leaves the client. The backend stays authoritative; a password that
// passes the policy can still be rejected remotely.
//
// # What this package must NOT do
//
//   - Store passwords or hashes.
//   - Import any other peerbonus package.
//   - Log plaintext passwords.
package password
