package password

import (
	"errors"
	"fmt"
	"unicode"
)

// MinLength is the minimum password length accepted at registration.
const MinLength = 8

// ErrPolicy is the class error for passwords rejected by CheckPolicy.
var ErrPolicy = errors.New("password does not meet policy")

// CheckPolicy reports whether password is acceptable for a new account:
// at least MinLength characters, with at least one letter and one digit.
func CheckPolicy(password string) error {
	var (
		n                 int
		hasLetter, hasDig bool
	)
	for _, r := range password {
		n++
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDig = true
		}
	}

	switch {
	case n < MinLength:
		return fmt.Errorf("%w: must be at least %d characters", ErrPolicy, MinLength)
	case !hasLetter:
		return fmt.Errorf("%w: must contain a letter", ErrPolicy)
	case !hasDig:
		return fmt.Errorf("%w: must contain a number", ErrPolicy)
	}
	return nil
}
