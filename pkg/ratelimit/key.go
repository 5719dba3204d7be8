package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

// maxKeyLength bounds key length so storage keys stay short.
const maxKeyLength = 64

// KeyFunc extracts a unique identifier from an HTTP request for rate limiting.
type KeyFunc func(*http.Request) string

// Key builds the storage key for an operation class and identifier.
// Identifiers longer than maxKeyLength are hashed.
func Key(class Class, id string) string {
	if id == "" {
		return ""
	}
	if len(id) > maxKeyLength {
		hash := sha256.Sum256([]byte(id))
		id = hex.EncodeToString(hash[:16])
	}
	return string(class) + ":" + id
}
