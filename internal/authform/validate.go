package authform

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// emailPattern matches local@domain.tld: non-whitespace local part and
// domain, with at least one dot in the domain.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Field-level validation messages. These are the only texts the validator
// ever produces.
const (
	MsgInvalidEmail  = "Enter a valid email address."
	MsgShortPassword = "Password must be at least 8 characters."
	MsgTermsRequired = "You must accept the terms to continue."
)

// minPasswordLength matches the provider's own minimum so local validation
// never accepts a password the provider would reject on length.
const minPasswordLength = 8

// Validate checks all applicable fields and reports every failing one.
// Rules are independent: no short-circuiting. An empty result means the
// form may be submitted.
//
// The password rule is skipped entirely in magic-link mode, and the terms
// rule applies only to signup.
func Validate(s State) FieldErrors {
	errs := FieldErrors{}

	if !emailPattern.MatchString(strings.TrimSpace(s.Email)) {
		errs[FieldEmail] = MsgInvalidEmail
	}

	if s.Mode != ModeMagicLink && utf8.RuneCountInString(s.Password) < minPasswordLength {
		errs[FieldPassword] = MsgShortPassword
	}

	if s.Mode == ModeSignup && !s.AcceptTerms {
		errs[FieldAcceptTerms] = MsgTermsRequired
	}

	return errs
}
