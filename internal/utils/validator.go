package utils

import (
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidateUsername checks the 5-20 character username constraint.
func ValidateUsername(username string) bool {
	return len(username) >= 5 && len(username) <= 20
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) bool {
	return len(password) >= 6
}

// SanitizeEmail sanitizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
