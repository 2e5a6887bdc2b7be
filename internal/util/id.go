package util

import "github.com/google/uuid"

// NewID returns a random UUID, used for every persisted entity.
func NewID() string {
	return uuid.NewString()
}

// IsID reports whether value is a well-formed UUID.
func IsID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
