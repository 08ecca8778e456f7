package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"ghostworks/api/internal/apperr"
)

const (
	MaxPasswordLength = 128
	passwordSymbols   = "!@#$%^&*()_+-=[]{}|;:,.<>?"
)

type PasswordPolicy struct {
	MinLength int
	MaxLength int
}

func NewPasswordPolicy(minLength int) PasswordPolicy {
	if minLength <= 0 {
		minLength = 8
	}
	return PasswordPolicy{MinLength: minLength, MaxLength: MaxPasswordLength}
}

// Check returns a WeakPassword error naming the first rule password breaks.
func (p PasswordPolicy) Check(password string) error {
	length := utf8.RuneCountInString(password)
	if length < p.MinLength {
		return apperr.WeakPassword(fmt.Sprintf("must be at least %d characters", p.MinLength))
	}
	if p.MaxLength > 0 && length > p.MaxLength {
		return apperr.WeakPassword(fmt.Sprintf("must be at most %d characters", p.MaxLength))
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}

	switch {
	case !upper:
		return apperr.WeakPassword("must contain an uppercase letter")
	case !lower:
		return apperr.WeakPassword("must contain a lowercase letter")
	case !digit:
		return apperr.WeakPassword("must contain a digit")
	case !symbol:
		return apperr.WeakPassword("must contain a special character")
	}
	return nil
}
