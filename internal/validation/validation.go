// Package validation checks the user-facing fields of an authentication
// request before they are shown to a user
package validation

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// MaxUserCodeLength bounds user codes, which are meant to be typed by hand
const MaxUserCodeLength = 64

// ValidationError describes a field that cannot be shown to the user
type ValidationError struct {
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value %q: %s", e.Value, e.Message)
}

// ValidateUserCode checks that a user code can be displayed and typed:
// non-blank, bounded, and free of whitespace and control characters.
func ValidateUserCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return &ValidationError{Value: code, Message: "user code is empty"}
	}
	if len(code) > MaxUserCodeLength {
		return &ValidationError{
			Value:   code,
			Message: fmt.Sprintf("user code exceeds %d characters", MaxUserCodeLength),
		}
	}
	for _, r := range code {
		if unicode.IsSpace(r) || unicode.IsControl(r) || !unicode.IsPrint(r) {
			return &ValidationError{Value: code, Message: "user code contains whitespace or control characters"}
		}
	}
	return nil
}

// ValidateVerificationURL checks that u is an absolute http or https URL
func ValidateVerificationURL(u string) error {
	parsed, err := url.Parse(u)
	if err != nil {
		return &ValidationError{Value: u, Message: err.Error()}
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return &ValidationError{Value: u, Message: "verification URL must be absolute"}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &ValidationError{Value: u, Message: fmt.Sprintf("unsupported scheme %q", parsed.Scheme)}
	}
	return nil
}

// NormalizeCode converts a user code to the canonical form used when
// comparing codes: upper case, no separators or surrounding space
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}
