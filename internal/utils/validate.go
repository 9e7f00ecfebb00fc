package utils

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// IsEmail reports whether s looks like a standard email address.
func IsEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}
