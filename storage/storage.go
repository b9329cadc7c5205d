// Package storage defines the key/value surface behind the two session
// persistence scopes.
//
// Implementations never return errors to callers. A backend that cannot be
// read behaves as if the key is absent and a failed write is logged and
// dropped, so callers can treat storage as always available.
package storage

// Storage is a string key/value scope
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}
