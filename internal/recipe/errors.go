package recipe

import "errors"

var (
	// ErrInvalidRequest is returned for malformed input. Callers see it as a 4xx.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrStorageUnavailable wraps any failure to reach the recipe database.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMalformedRow is returned when a stored row cannot be decoded.
	ErrMalformedRow = errors.New("malformed row")

	// ErrGenerationParse is returned when the model output is not a usable recipe set.
	ErrGenerationParse = errors.New("generation output could not be parsed")
	// ErrGenerationUnavailable covers network, timeout and quota failures of the generative API.
	ErrGenerationUnavailable = errors.New("generation unavailable")
)
