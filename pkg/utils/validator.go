package utils

import (
	"fmt"
	"regexp"
)

var (
	statusIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_\-]{0,63}$`)
	colorPattern    = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	controlChars    = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// ValidateStatusID checks that a status id is a lowercase slug
func ValidateStatusID(id string) error {
	if !statusIDPattern.MatchString(id) {
		return fmt.Errorf("status id must be a lowercase slug (letters, digits, '_' or '-'): %q", id)
	}
	return nil
}

// ValidateColor checks a #rgb or #rrggbb color. Empty is allowed.
func ValidateColor(color string) error {
	if color == "" {
		return nil
	}
	if !colorPattern.MatchString(color) {
		return fmt.Errorf("invalid color format: %q", color)
	}
	return nil
}

// SanitizeString removes control characters, keeping tabs and newlines
func SanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}
