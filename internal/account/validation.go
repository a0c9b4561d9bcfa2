package account

import (
	"net/mail"
	"strings"
	"unicode"
)

const passwordSymbols = `!@#$%^&*(),.?":{}|<>`

// Kind classifies an account failure.
type Kind int

const (
	KindInvalid Kind = iota + 1
	KindUnauthenticated
	KindForbidden
	KindConflict
)

// Error is an account failure whose message is shown to the caller.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func invalid(msg string) error { return &Error{Kind: KindInvalid, Message: msg} }

func validateUsername(username string) error {
	if username == "" {
		return invalid("Username is required.")
	}
	if len(username) < 5 {
		return invalid("Username must be at least 5 characters long.")
	}
	return nil
}

func validatePassword(password string) error {
	if password == "" {
		return invalid("Password is required.")
	}
	if len(password) < 10 {
		return invalid("Password must be at least 10 characters long.")
	}
	var digit, upper, lower, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}
	switch {
	case !digit:
		return invalid("Password must contain at least one number.")
	case !upper:
		return invalid("Password must contain at least one uppercase letter.")
	case !lower:
		return invalid("Password must contain at least one lowercase letter.")
	case !symbol:
		return invalid("Password must contain at least one symbol.")
	}
	return nil
}

// ValidEmail reports whether email is a bare address such as a@b.example.
func ValidEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	return strings.Contains(email[strings.LastIndex(email, "@")+1:], ".")
}
