package utils

import (
	"fmt"
	"regexp"
	"strings"
)

const maxNameLength = 200

var (
	identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.:-]*$`)
	controlRegex    = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// ValidateIdentifier validates a step, stage, or requirement id.
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier must not be empty")
	}
	if len(id) > 64 {
		return fmt.Errorf("identifier exceeds 64 characters: %s", id)
	}
	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("identifier contains invalid characters: %s", id)
	}
	return nil
}

// ValidateName validates a human-readable display name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name exceeds %d characters", maxNameLength)
	}
	return nil
}

// SanitizeString removes control characters from free-form text fields.
func SanitizeString(s string) string {
	return controlRegex.ReplaceAllString(s, "")
}
