package autoflow

import "github.com/google/uuid"

// GenerateID returns a random ID with the given prefix.
func GenerateID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
