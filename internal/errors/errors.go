package errors

import "errors"

// Request errors. These reject a whole operation.
var (
	ErrMalformedInput = errors.New("malformed input")
	ErrPathEscape     = errors.New("path escapes output directory")
)

// Artifact errors. These are reported per item and never abort a batch.
var (
	ErrNotFound    = errors.New("file not found")
	ErrOversized   = errors.New("file too large")
	ErrInvalidTree = errors.New("invalid instance tree")
)
