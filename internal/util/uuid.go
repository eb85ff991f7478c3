package util

import "github.com/google/uuid"

// GenerateUUID returns a random V4 UUID string, used for order, ledger entry
// and outbox message identifiers.
func GenerateUUID() string {
	return uuid.NewString()
}
