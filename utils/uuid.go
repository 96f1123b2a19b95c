package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new random identifier string
func GenerateID() string {
	return uuid.NewString()
}

// PrefixedID returns a random identifier tagged with kind, e.g. "sess-1b4e..."
func PrefixedID(kind string) string {
	return kind + "-" + uuid.NewString()
}
