package store

import "github.com/google/uuid"

// NewID returns a new UUIDv7. Version 7 IDs embed a millisecond timestamp in
// the high bits, so lexicographic order of the TEXT primary keys matches
// creation order and recent-first listings can sort by id alone.
func NewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
