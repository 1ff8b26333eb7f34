// Package secrets provides durable, opaque key→string storage for
// credentials.
//
// The Store interface abstracts keychain-style secret storage. Two
// implementations are included:
//
//   - MemoryStore: in-memory, for tests and ephemeral sessions
//   - FileStore: a single encrypted file (scrypt-derived key,
//     ChaCha20-Poly1305), rewritten atomically on every mutation
//
// Applications on platforms with an OS keystore typically wrap it in a
// thin adapter satisfying Store instead of using FileStore.
package secrets
