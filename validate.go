package authcore

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	maxEmailLength    = 254
	minPasswordLength = 8
	maxPasswordLength = 128
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// normalizeEmail trims surrounding whitespace and lowercases the address.
// All storage and lookups operate on the normalized form.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(normalized string) bool {
	if normalized == "" || len(normalized) > maxEmailLength {
		return false
	}
	return emailPattern.MatchString(normalized)
}

// validPassword enforces the registration policy: 8 to 128 characters with at
// least one upper-case letter, one lower-case letter, and one digit.
func validPassword(plaintext string) bool {
	if len(plaintext) < minPasswordLength || len(plaintext) > maxPasswordLength {
		return false
	}
	var upper, lower, digit bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// maskEmail reduces an address to an audit-safe form: first two characters of
// the local part, three stars, and the domain.
func maskEmail(email string) string {
	local, domain, found := strings.Cut(email, "@")
	if !found {
		return "***"
	}
	if len(local) > 2 {
		local = local[:2]
	}
	return local + "***@" + domain
}
