package domain

import (
	"errors"
	"sort"
	"strings"
)

// Store errors. Callers match them with errors.Is.
var (
	// ErrNotFound is returned when an update or delete targets an unknown id
	ErrNotFound = errors.New("record not found")

	// ErrInvalidFormat is returned when import data is not a JSON array
	ErrInvalidFormat = errors.New("invalid import format")

	// ErrQuotaExceeded is returned when the backing store rejects a write for capacity reasons
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrValidation is returned when a record violates field constraints
	ErrValidation = errors.New("validation failed")
)

// FormatReason tells the caller why import data was rejected
type FormatReason string

const (
	FormatReasonMalformedJSON FormatReason = "malformed_json"
	FormatReasonNotAnArray    FormatReason = "not_an_array"
)

// FormatError describes rejected import data
type FormatError struct {
	Reason FormatReason
	Cause  error
}

func (e *FormatError) Error() string {
	switch e.Reason {
	case FormatReasonNotAnArray:
		return "invalid import format: top-level value is not an array"
	default:
		if e.Cause != nil {
			return "invalid import format: malformed JSON: " + e.Cause.Error()
		}
		return "invalid import format: malformed JSON"
	}
}

// Is makes errors.Is(err, ErrInvalidFormat) succeed
func (e *FormatError) Is(target error) bool {
	return target == ErrInvalidFormat
}

func (e *FormatError) Unwrap() error {
	return e.Cause
}

// ValidationError maps field names to human-readable messages
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError creates a validation error for a single field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidation) succeed
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// APIError represents a standardized API error with HTTP status code
type APIError struct {
	Type   string            `json:"type"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Title
}

// ValidationMessages provides human-readable validation error messages
// These map validator tags to user-friendly messages
var ValidationMessages = map[string]string{
	"required": "This field is required",
	"email":    "Must be a valid email address",
	"contact":  "Must be a valid email address or phone number",
	"max":      "Exceeds maximum length",
	"min":      "Below minimum length",
	"gte":      "Must be greater than or equal to minimum value",
	"lte":      "Must be less than or equal to maximum value",
	"oneof":    "Must be one of the allowed values",
	"dive":     "Contains an invalid element",
}

// GetValidationMessage returns a human-readable message for a validation tag
func GetValidationMessage(tag string) string {
	if msg, ok := ValidationMessages[tag]; ok {
		return msg
	}
	return "Validation failed: " + tag
}

// Common error types for RFC 7807 Problem Details
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeNotFound      = "not_found"
	ErrorTypeBadRequest    = "bad_request"
	ErrorTypeInvalidFormat = "invalid_format"
	ErrorTypeQuota         = "quota_exceeded"
	ErrorTypeUnauthorized  = "unauthorized"
	ErrorTypeBadGateway    = "upstream_error"
	ErrorTypeUnavailable   = "service_unavailable"
	ErrorTypeTooLarge      = "payload_too_large"
	ErrorTypeInternal      = "internal_error"
)
