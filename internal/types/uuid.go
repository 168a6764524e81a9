package types

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a random 128-bit UUID in canonical string form.
// Used for all persisted entity identifiers.
func GenerateUUID() string {
	return uuid.New().String()
}

// GenerateEventID returns a k-sortable unique identifier for webhook
// events and message IDs, where ordering by ID is useful.
func GenerateEventID() string {
	return ulid.Make().String()
}
