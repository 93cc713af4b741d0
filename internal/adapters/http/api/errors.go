package api

import "errors"

// Request-shape failures. Both surface as validation_error.
var (
	ErrBadRequest   = errors.New("malformed request body")
	ErrMissingField = errors.New("required field missing")
)
