package password

import (
	"errors"
	"unicode"
)

var (
	ErrTooShort      = errors.New("password is too short")
	ErrTooLong       = errors.New("password is too long")
	ErrMissingUpper  = errors.New("password must contain an uppercase letter")
	ErrMissingLower  = errors.New("password must contain a lowercase letter")
	ErrMissingNumber = errors.New("password must contain a number")
	ErrMissingSymbol = errors.New("password must contain a symbol")
)

// Policy describes the strength rules applied at sign-up.
type Policy struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSymbol    bool
}

// DefaultPolicy requires 8 to 255 characters from all four classes.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:        8,
		MaxLength:        255,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumber:    true,
		RequireSymbol:    true,
	}
}

// Validate returns the first rule the password breaks, or nil.
func (p Policy) Validate(password string) error {
	length := len([]rune(password))
	if p.MinLength > 0 && length < p.MinLength {
		return ErrTooShort
	}
	if p.MaxLength > 0 && length > p.MaxLength {
		return ErrTooLong
	}

	var upper, lower, number, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			number = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	switch {
	case p.RequireUppercase && !upper:
		return ErrMissingUpper
	case p.RequireLowercase && !lower:
		return ErrMissingLower
	case p.RequireNumber && !number:
		return ErrMissingNumber
	case p.RequireSymbol && !symbol:
		return ErrMissingSymbol
	}
	return nil
}
