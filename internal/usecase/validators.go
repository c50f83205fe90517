package usecase

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/Kimkangyeon-17/teskflow/internal/domain"
)

// PasswordValidator is a pure check against a candidate password.
// attrs carries lowercased account attributes (email, names) for the
// similarity check.
type PasswordValidator func(password string, attrs []string) error

// passwordValidators run in order; the first failure wins.
var passwordValidators = []PasswordValidator{
	minLength(8),
	notNumericOnly,
	notCommonPassword,
	notSimilarToAttributes,
}

func validatePasswordStrength(password string, attrs []string) error {
	for _, validate := range passwordValidators {
		if err := validate(password, attrs); err != nil {
			return err
		}
	}
	return nil
}

func minLength(n int) PasswordValidator {
	return func(password string, _ []string) error {
		if len(password) < n {
			return fmt.Errorf("%w: at least %d characters required", domain.ErrWeakPassword, n)
		}
		return nil
	}
}

func notNumericOnly(password string, _ []string) error {
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return nil
		}
	}
	return fmt.Errorf("%w: entirely numeric", domain.ErrWeakPassword)
}

var commonPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"12345678":    {},
	"123456789":   {},
	"qwerty123":   {},
	"qwertyuiop":  {},
	"iloveyou":    {},
	"letmein1":    {},
	"admin123":    {},
}

func notCommonPassword(password string, _ []string) error {
	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		return fmt.Errorf("%w: too common", domain.ErrWeakPassword)
	}
	return nil
}

func notSimilarToAttributes(password string, attrs []string) error {
	lower := strings.ToLower(password)
	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		if strings.Contains(lower, attr) || strings.Contains(attr, lower) {
			return fmt.Errorf("%w: too similar to account details", domain.ErrWeakPassword)
		}
	}
	return nil
}

// attributeParts splits account attributes into comparable chunks, e.g. the
// local part of the email.
func attributeParts(email, firstName, lastName string) []string {
	parts := []string{}
	if at := strings.Index(email, "@"); at > 0 {
		parts = append(parts, strings.ToLower(email[:at]))
	}
	if firstName != "" {
		parts = append(parts, strings.ToLower(firstName))
	}
	if lastName != "" {
		parts = append(parts, strings.ToLower(lastName))
	}
	out := parts[:0]
	for _, p := range parts {
		// single characters match everything
		if len(p) >= 3 {
			out = append(out, p)
		}
	}
	return out
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func validateEmail(email string) error {
	if !strings.Contains(email, "@") || len(email) > 255 {
		return domain.ErrInvalidEmail
	}
	return nil
}
