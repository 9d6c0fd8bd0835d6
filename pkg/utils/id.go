package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a new unique identifier with the given prefix
func GenerateID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
