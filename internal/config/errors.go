package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate and Config.ValidateServer so
// that callers can use errors.Is.
var (
	// ErrNoTarget is returned when no seed URL is given to the crawl command.
	ErrNoTarget = errors.New("no target specified: provide at least one seed url")

	// ErrInvalidTimeout is returned when the fetch timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidMaxDepth is returned when the depth limit is negative.
	ErrInvalidMaxDepth = errors.New("invalid depth: must be non-negative")

	// ErrInvalidMaxPages is returned when the page limit is below one.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be at least 1")

	// ErrInvalidConcurrency is returned when the concurrency is below one.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be at least 1")

	// ErrUnknownFetcher is returned for a fetcher name other than "http" or "colly".
	ErrUnknownFetcher = errors.New("unknown fetcher: must be \"http\" or \"colly\"")

	// ErrInvalidListenAddr is returned when the server has no listen address.
	ErrInvalidListenAddr = errors.New("invalid listen address: must not be empty")

	// ErrInvalidRequestTimeout is returned when the request timeout is negative.
	ErrInvalidRequestTimeout = errors.New("invalid request timeout: must be non-negative")

	// ErrInvalidCacheTTL is returned when caching is enabled with a
	// non-positive TTL.
	ErrInvalidCacheTTL = errors.New("invalid cache ttl: must be positive when redis is enabled")
)
