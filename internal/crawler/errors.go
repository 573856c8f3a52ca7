package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSeed is returned when the seed URL is not an absolute
	// http(s) URL with a host.
	ErrInvalidSeed = errors.New("invalid seed url")

	// ErrInvalidLimits is returned when the crawl limits are out of range.
	ErrInvalidLimits = errors.New("invalid crawl limits")

	// ErrUnexpectedStatus is wrapped by FetchError when the server answered
	// with a non-2xx status code.
	ErrUnexpectedStatus = errors.New("unexpected status code")

	// ErrNoResponse is wrapped by FetchError when a fetch completed without
	// producing a response.
	ErrNoResponse = errors.New("no response received")

	// ErrRedirectClaimed is wrapped by FetchError when a redirect points at
	// a page another task of the session has already claimed.
	ErrRedirectClaimed = errors.New("redirect target already claimed")
)

// FetchError describes a fetch that failed, either in transport or with a
// non-2xx response. It terminates only the branch that produced it.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}
