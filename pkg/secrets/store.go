package secrets

import "errors"

// Store errors.
var (
	ErrNotFound = errors.New("secret not found")
)

// Store defines durable, opaque key→string storage for credentials.
// Implementations must be safe for concurrent access and must survive
// process restarts (MemoryStore is the deliberate exception, for tests
// and ephemeral sessions).
//
// Any platform-appropriate secure storage satisfies this interface: an OS
// keystore binding, the encrypted FileStore shipped here, or a
// secret-manager client.
type Store interface {
	// Store persists a value under a key, overwriting any previous value.
	Store(key, value string) error

	// Retrieve returns the value for a key.
	// Returns ErrNotFound if no value exists.
	Retrieve(key string) (string, error)

	// Delete removes the value for a key. Deleting an absent key is not
	// an error.
	Delete(key string) error
}
