package notify

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidPhone = errors.New("notify: phone number is not a valid E.164 number")
	ErrInvalidEmail = errors.New("notify: email address is invalid")
)

var emailPattern = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)

// SanitizePhone normalizes a raw phone number to E.164. Bare national
// numbers get the configured default country code prefixed.
func SanitizePhone(raw, defaultCountryCode string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidPhone
	}

	hasPlus := strings.HasPrefix(trimmed, "+")
	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	number := digits.String()

	// International prefix written as 00.
	if !hasPlus && strings.HasPrefix(number, "00") {
		hasPlus = true
		number = number[2:]
	}

	if !hasPlus {
		cc := strings.TrimPrefix(strings.TrimSpace(defaultCountryCode), "+")
		number = cc + number
	}
	if len(number) < 8 || len(number) > 15 {
		return "", ErrInvalidPhone
	}
	return "+" + number, nil
}

// SanitizeEmail lowercases and validates an email address.
func SanitizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if !emailPattern.MatchString(email) {
		return "", ErrInvalidEmail
	}
	return email, nil
}
