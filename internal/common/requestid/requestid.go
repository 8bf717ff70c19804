package requestid

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MaxRequestIDLength caps the total ID length (same as a UUID: 36 chars)
const MaxRequestIDLength = 36

// sanitizeRegex removes all characters except a-z, A-Z, 0-9, and hyphens
var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// Generate creates a request ID from an optional caller-supplied ID.
// A custom ID is sanitized to [a-zA-Z0-9-] and length-capped; when empty or
// fully stripped by sanitization, a fresh UUID is used instead.
func Generate(customID string) string {
	sanitized := strings.ReplaceAll(customID, " ", "-")
	sanitized = sanitizeRegex.ReplaceAllString(sanitized, "")
	sanitized = strings.Trim(sanitized, "-")

	if sanitized == "" {
		return uuid.New().String()
	}

	if len(sanitized) > MaxRequestIDLength {
		sanitized = sanitized[:MaxRequestIDLength]
	}
	return sanitized
}
