package server

import "errors"

var (
	// ErrMissingURL is returned when a scrape request has no url.
	ErrMissingURL = errors.New("missing url")

	// ErrInvalidBody is returned when a scrape request body is not a JSON object.
	ErrInvalidBody = errors.New("invalid json body")
)
