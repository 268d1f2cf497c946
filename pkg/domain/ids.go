package domain

import "github.com/google/uuid"

// NewID returns a time-ordered identifier (UUIDv7), so creation order can
// be recovered from ids alone.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
