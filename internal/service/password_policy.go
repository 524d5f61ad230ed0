package service

import (
	"fmt"
	"unicode"
)

// PasswordPolicy enumerates the rules a new password must satisfy.
type PasswordPolicy struct {
	MinLength      int
	RequireDigit   bool
	RequireLower   bool
	RequireUpper   bool
	RequireSpecial bool
	ForbidSpace    bool
}

// DefaultPasswordPolicy enables every rule with the given minimum length.
func DefaultPasswordPolicy(minLength int) PasswordPolicy {
	return PasswordPolicy{
		MinLength:      minLength,
		RequireDigit:   true,
		RequireLower:   true,
		RequireUpper:   true,
		RequireSpecial: true,
		ForbidSpace:    true,
	}
}

// Check returns a WeakPasswordError naming every broken rule, or nil.
func (p PasswordPolicy) Check(password string) error {
	var hasDigit, hasLower, hasUpper, hasSpecial, hasSpace bool
	length := 0
	for _, r := range password {
		length++
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsSpace(r):
			hasSpace = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	var reasons []string
	if length < p.MinLength {
		reasons = append(reasons, fmt.Sprintf("must be at least %d characters", p.MinLength))
	}
	if p.RequireDigit && !hasDigit {
		reasons = append(reasons, "must contain a digit")
	}
	if p.RequireLower && !hasLower {
		reasons = append(reasons, "must contain a lowercase letter")
	}
	if p.RequireUpper && !hasUpper {
		reasons = append(reasons, "must contain an uppercase letter")
	}
	if p.RequireSpecial && !hasSpecial {
		reasons = append(reasons, "must contain a special character")
	}
	if p.ForbidSpace && hasSpace {
		reasons = append(reasons, "must not contain whitespace")
	}
	if len(reasons) > 0 {
		return &WeakPasswordError{Reasons: reasons}
	}
	return nil
}
