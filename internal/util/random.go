// Package util provides utility functions for the VaultBot application.
package util

import (
	"math/rand/v2"
)

// RandomMessageID generates the client-side random id Telegram requires on
// send and forward requests for server-side deduplication.
// Uses math/rand/v2 for optimal performance; cryptographic strength is not
// required here.
func RandomMessageID() int64 {
	return rand.Int64()
}
