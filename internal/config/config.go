package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultMaxDepth is how many links away from the seed the crawler goes.
	// The seed page has depth 0.
	DefaultMaxDepth = 3

	// DefaultMaxPages caps the number of fetches in one crawl session.
	DefaultMaxPages = 50

	// DefaultConcurrency is the number of fetches allowed in flight at once
	// within a single session.
	DefaultConcurrency = 5

	// DefaultTimeout bounds each individual fetch.
	DefaultTimeout = 30 * time.Second

	// DefaultBatchSize is the number of seeds crawled at the same time when
	// several seeds are given on the command line.
	DefaultBatchSize = 4

	// DefaultListenAddr is the address the HTTP server listens on.
	DefaultListenAddr = ":6662"

	// DefaultCacheTTL is how long a cached crawl result stays valid.
	DefaultCacheTTL = 1 * time.Hour

	// AppName is the application name used for XDG directory paths.
	AppName = "mailspider"

	// DefaultUserAgent identifies mailspider in HTTP requests.
	DefaultUserAgent = "Mozilla/5.0 (compatible; mailspider/1.0; +https://github.com/nao1215/mailspider)"

	// DefaultMaxBodySize limits the response body size read per page.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// FetcherHTTP selects the net/http based fetcher.
	FetcherHTTP = "http"

	// FetcherColly selects the colly based fetcher.
	FetcherColly = "colly"
)

// Config holds all configuration options for mailspider.
// It is populated from CLI flags and the config file and passed down
// explicitly; there is no global configuration state.
type Config struct {
	// MaxDepth is the deepest link level that is fetched.
	// 0 means only the seed page.
	MaxDepth int

	// MaxPages is the maximum number of pages fetched per seed.
	MaxPages int

	// Concurrency is the number of fetches in flight per seed.
	Concurrency int

	// Timeout bounds each single fetch.
	Timeout time.Duration

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON lines.
	LogJSON bool

	// BatchSize is the number of seeds crawled concurrently.
	BatchSize int

	// ConfigFilePath is the path to the configuration file.
	// If empty, the file is searched for as described in FindConfigFile.
	ConfigFilePath string

	// SiteConfigs holds the defaults and per-host overrides loaded from the
	// config file. Nil when no file was found.
	SiteConfigs *File

	// JSONReport and MarkdownReport select the report format.
	// They are mutually exclusive; the default is plain text.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile is the output file path for the report. Empty means stdout.
	ReportFile string

	// OutputDir, when set, receives urls.txt and emails.txt for every seed.
	OutputDir string

	// Targets is the list of seed URLs to crawl.
	Targets []string

	// DBDir is the directory holding the SQLite history database.
	// Defaults to the XDG data directory.
	DBDir string

	// SaveToDB indicates whether crawl results are stored in the history database.
	SaveToDB bool

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	// 0 means the default.
	MaxBodySize int64

	// Fetcher selects the fetch implementation: "http" or "colly".
	Fetcher string

	// Mailto enables reading addresses from mailto: links.
	Mailto bool

	// ListenAddr is the address for the HTTP server.
	ListenAddr string

	// RequestTimeout bounds a whole crawl started through the HTTP server.
	// 0 means no bound.
	RequestTimeout time.Duration

	// RedisAddr is the address of the Redis server used to cache server
	// results. Empty disables the cache.
	RedisAddr string

	// CacheTTL is the lifetime of a cached result.
	CacheTTL time.Duration
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxDepth:    DefaultMaxDepth,
		MaxPages:    DefaultMaxPages,
		Concurrency: DefaultConcurrency,
		Timeout:     DefaultTimeout,
		BatchSize:   DefaultBatchSize,
		UserAgent:   DefaultUserAgent,
		MaxBodySize: DefaultMaxBodySize,
		Fetcher:     FetcherHTTP,
		Mailto:      true,
		ListenAddr:  DefaultListenAddr,
		CacheTTL:    DefaultCacheTTL,
	}
}

// XDGDataDir returns the XDG data directory for mailspider.
// On Linux: ~/.local/share/mailspider
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for mailspider.
// On Linux: ~/.config/mailspider
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration of a crawl run.
// It returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return c.validateCrawl()
}

// ValidateServer checks the configuration of the HTTP server.
func (c *Config) ValidateServer() error {
	if c.ListenAddr == "" {
		return ErrInvalidListenAddr
	}
	if c.RequestTimeout < 0 {
		return ErrInvalidRequestTimeout
	}
	if c.RedisAddr != "" && c.CacheTTL <= 0 {
		return ErrInvalidCacheTTL
	}
	return c.validateCrawl()
}

func (c *Config) validateCrawl() error {
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.MaxPages < 1 {
		return ErrInvalidMaxPages
	}
	if c.Concurrency < 1 {
		return ErrInvalidConcurrency
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	switch c.Fetcher {
	case FetcherHTTP, FetcherColly:
	default:
		return ErrUnknownFetcher
	}
	return nil
}
