package util

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidEmail is returned when an email address cannot be parsed.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidCountry indicates a value is not an ISO 3166 alpha-2 code.
	ErrInvalidCountry = errors.New("invalid country code")
)

var (
	validate       = validator.New(validator.WithRequiredStructEnabled())
	countryPattern = regexp.MustCompile(`^[A-Z]{2}$`)
)

// importPlaceholderSuffix marks addresses minted for bulk-imported users who
// never supplied a real mailbox.
const importPlaceholderSuffix = ".import"

// NormalizeEmail validates an address and returns its canonical form:
// trimmed, without display name, lower-cased.
func NormalizeEmail(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: value is empty", ErrInvalidEmail)
	}

	if err := validate.Var(trimmed, "required,email"); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, trimmed)
	}

	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	if addr.Name != "" || addr.Address != trimmed {
		return "", fmt.Errorf("%w: unexpected formatting", ErrInvalidEmail)
	}

	return strings.ToLower(addr.Address), nil
}

// IsImportPlaceholder reports whether the address belongs to a placeholder
// domain such as "user@mobile.import".
func IsImportPlaceholder(value string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(value)), importPlaceholderSuffix)
}

// NormalizeCountry upper-cases a country code and checks it is two letters.
func NormalizeCountry(value string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(value))
	if !countryPattern.MatchString(code) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCountry, value)
	}
	return code, nil
}
