package scope

import "errors"

var (
	// ErrMalformedURL is returned when a reference cannot be parsed or
	// resolved. Crawl code treats such links as out of scope.
	ErrMalformedURL = errors.New("malformed url")

	// ErrEmptySeed is returned when the seed URL is blank.
	ErrEmptySeed = errors.New("seed url is empty")

	// ErrInvalidSeed is returned when the seed URL has no usable host or an
	// unsupported scheme.
	ErrInvalidSeed = errors.New("invalid seed url: must be an http(s) url with a host")
)
