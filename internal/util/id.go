package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a URL-safe random hex ID.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
