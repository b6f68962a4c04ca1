package sim

import (
	"strings"

	"github.com/google/uuid"
)

// NewClientID derives a per-run broker client ID from a device identifier.
func NewClientID(identifier string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return identifier + "_" + hex[:6]
}
