package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Lead field limits
const (
	MinNameLength = 2
	MaxNameLength = 100
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[0-9+\-\s()]{7,20}$`)
)

// IsValidEmail reports whether s looks like an email address
func IsValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// IsValidPhone reports whether s looks like a phone number (digits, spaces, +, -, parentheses, 7-20 chars)
func IsValidPhone(s string) bool {
	return phonePattern.MatchString(s) && strings.ContainsAny(s, "0123456789")
}

// IsValidContact reports whether s is empty, an email or a phone number
func IsValidContact(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || IsValidEmail(s) || IsValidPhone(s)
}

// ValidateLead checks a canonical lead against the field constraints
func ValidateLead(l Lead) error {
	fields := map[string]string{}
	n := utf8.RuneCountInString(strings.TrimSpace(l.Name))
	switch {
	case n == 0:
		fields["name"] = "name is required"
	case n < MinNameLength:
		fields["name"] = "Must be at least 2 characters"
	case n > MaxNameLength:
		fields["name"] = "Must be at most 100 characters"
	}
	if !IsValidContact(l.Contact) {
		fields["contact"] = ValidationMessages["contact"]
	}
	if !l.Status.Valid() {
		fields["status"] = ValidationMessages["oneof"]
	}
	if !l.Type.Valid() {
		fields["type"] = ValidationMessages["oneof"]
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ValidateExpose checks the structural invariants of an expose
func ValidateExpose(e SavedExpose) error {
	if len(e.Images) != len(e.Captions) {
		return NewValidationError("captions", "Every image needs exactly one caption")
	}
	if !e.SelectedStyle.Valid() {
		return NewValidationError("selectedStyle", ValidationMessages["oneof"])
	}
	return nil
}
