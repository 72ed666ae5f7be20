package utils

import "github.com/google/uuid"

// NewID returns a process-unique connection identifier.
func NewID() string {
	return uuid.NewString()
}
