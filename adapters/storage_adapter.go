package adapters

// StorageAdapter is an interface for durable key/value persistence.
// Values are opaque strings, usually JSON documents.
// Implement this interface to use custom storage backends (database, Redis, S3, etc.).
type StorageAdapter interface {
	// Get returns the value stored under key.
	//
	// The boolean is false when the key does not exist.
	Get(key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	//
	// Returns *StorageQuotaExceededError if the backend is full.
	Set(key, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error

	// Keys lists all stored keys in no particular order.
	Keys() ([]string, error)
}
