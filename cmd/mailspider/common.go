package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/mailspider/internal/config"
	"github.com/nao1215/mailspider/internal/crawler"
	applog "github.com/nao1215/mailspider/internal/log"
	"github.com/nao1215/mailspider/internal/model"
	"github.com/nao1215/mailspider/internal/scope"
)

// addCrawlFlags registers the flags shared by every command that crawls.
func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth,
		"Maximum link depth from the seed page (the seed is depth 0)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages fetched per seed")
	cmd.Flags().Int("concurrency", config.DefaultConcurrency,
		"Maximum number of concurrent fetches per seed")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each fetch")
	cmd.Flags().String("fetcher", config.FetcherHTTP,
		"Fetch implementation: \"http\" or \"colly\"")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent header sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum number of bytes read from each response body")
	cmd.Flags().Bool("no-mailto", false,
		"Do not read addresses from mailto: links")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .mailspider in current or home directory)")
	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")
}

// readCrawlFlags copies the shared crawl flags into cfg and loads the
// configuration file.
func readCrawlFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error

	if cfg.MaxDepth, err = cmd.Flags().GetInt("depth"); err != nil {
		return err
	}
	if cfg.MaxPages, err = cmd.Flags().GetInt("max-pages"); err != nil {
		return err
	}
	if cfg.Concurrency, err = cmd.Flags().GetInt("concurrency"); err != nil {
		return err
	}
	if cfg.Timeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
		return err
	}
	if cfg.Fetcher, err = cmd.Flags().GetString("fetcher"); err != nil {
		return err
	}
	if cfg.UserAgent, err = cmd.Flags().GetString("user-agent"); err != nil {
		return err
	}
	if cfg.MaxBodySize, err = cmd.Flags().GetInt64("max-body-size"); err != nil {
		return err
	}

	noMailto, err := cmd.Flags().GetBool("no-mailto")
	if err != nil {
		return err
	}
	cfg.Mailto = !noMailto

	if cfg.DBDir, err = cmd.Flags().GetString("db-dir"); err != nil {
		return err
	}
	if cfg.DBDir == "" {
		cfg.DBDir = config.XDGDataDir()
	}

	if cfg.ConfigFilePath, err = cmd.Flags().GetString("config"); err != nil {
		return err
	}
	return loadSiteConfigs(cfg)
}

// loadSiteConfigs loads the configuration file into cfg.SiteConfigs.
// A missing file is an error only when its path was given explicitly.
func loadSiteConfigs(cfg *config.Config) error {
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath == "" {
		if cfg.ConfigFilePath != "" {
			return fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
		}
		return nil
	}

	siteConfigs, err := config.LoadConfigFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", configPath, err)
	}
	cfg.SiteConfigs = siteConfigs
	return nil
}

// getBoolFlag reads a boolean flag from the command or, when the command
// runs outside its root, from the root's persistent flags.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		value, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return value
}

// setupLogger creates the sanitizing logger for a command. Without
// --verbose only records at fallback and above are written.
func setupLogger(cmd *cobra.Command, fallback slog.Level) *slog.Logger {
	level := applog.LevelFor(getBoolFlag(cmd, "verbose"), fallback)
	if getBoolFlag(cmd, "log-json") {
		return applog.NewSecureJSONLogger(cmd.ErrOrStderr(), level)
	}
	return applog.NewSecureLogger(cmd.ErrOrStderr(), level)
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// siteCrawler runs crawl sessions with the fetch settings of the seed's
// host applied.
type siteCrawler struct {
	cfg    *config.Config
	logger *slog.Logger
}

func newSiteCrawler(cfg *config.Config, logger *slog.Logger) *siteCrawler {
	return &siteCrawler{cfg: cfg, logger: logger}
}

// Run crawls an already normalized seed within limits. Only the transport
// settings of the host's site config apply.
func (c *siteCrawler) Run(ctx context.Context, seedURL string, limits crawler.Limits) (*model.CrawlResult, error) {
	host, err := scope.RootScope(seedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrInvalidSeed, err)
	}
	return c.engine(c.cfg.CrawlSettings(host)).Run(ctx, seedURL, limits)
}

// crawlSeed normalizes a seed given on the command line and crawls it with
// the limits resolved for its host.
func (c *siteCrawler) crawlSeed(ctx context.Context, seed string) (*model.CrawlResult, error) {
	normalized, err := scope.NormalizeSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("invalid seed %q: %w", seed, err)
	}
	host, err := scope.RootScope(normalized)
	if err != nil {
		return nil, fmt.Errorf("invalid seed %q: %w", seed, err)
	}

	settings := c.cfg.CrawlSettings(host)
	return c.engine(settings).Run(ctx, normalized, crawler.Limits{
		MaxDepth:       settings.MaxDepth,
		MaxPages:       settings.MaxPages,
		MaxConcurrency: settings.Concurrency,
	})
}

func (c *siteCrawler) engine(settings config.CrawlSettings) *crawler.Engine {
	fetchOpts := []crawler.HTTPFetcherOption{
		crawler.WithUserAgent(settings.UserAgent),
		crawler.WithHeaders(settings.Headers),
		crawler.WithCookie(settings.Cookie),
		crawler.WithMaxBodySize(c.cfg.MaxBodySize),
	}

	var fetcher crawler.Fetcher
	if c.cfg.Fetcher == config.FetcherColly {
		fetcher = crawler.NewCollyFetcher(fetchOpts...)
	} else {
		fetcher = crawler.NewHTTPFetcher(fetchOpts...)
	}

	return crawler.NewEngine(
		crawler.WithFetcher(fetcher),
		crawler.WithLogger(c.logger),
		crawler.WithFetchTimeout(c.cfg.Timeout),
		crawler.WithMailto(settings.Mailto),
	)
}
