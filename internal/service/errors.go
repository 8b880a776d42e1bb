package service

import "errors"

// Service errors. Store errors (not found, quota, validation, format) come
// from the domain package and pass through unchanged.
var (
	// ErrUnsupportedFormat is returned for an unknown export format
	ErrUnsupportedFormat = errors.New("unsupported export format")

	// ErrGeneratorUnavailable is returned when no text generator is configured
	ErrGeneratorUnavailable = errors.New("text generation unavailable")

	// ErrEmptyImport is returned when an import request carries no data
	ErrEmptyImport = errors.New("import data is empty")
)
