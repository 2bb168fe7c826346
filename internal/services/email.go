package services

import (
	"net/mail"
	"regexp"
	"strings"
)

var reEmail = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// IsEmail is the basic shape check used to classify free-typed input.
func IsEmail(s string) bool {
	return reEmail.MatchString(strings.TrimSpace(s))
}

// NormEmail lower-cases and trims; ok is false for unparseable addresses.
func NormEmail(s string) (string, bool) {
	e := strings.TrimSpace(strings.ToLower(s))
	if e == "" {
		return "", true // treat empty as ok/optional
	}
	_, err := mail.ParseAddress(e)
	return e, err == nil
}
