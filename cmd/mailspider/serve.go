package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/mailspider/internal/cache"
	"github.com/nao1215/mailspider/internal/config"
	"github.com/nao1215/mailspider/internal/crawler"
	"github.com/nao1215/mailspider/internal/database"
	"github.com/nao1215/mailspider/internal/server"
)

// cachePingTimeout bounds the Redis reachability check at startup.
const cachePingTimeout = 5 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the crawler over HTTP",
		Long: `Serve starts an HTTP server that crawls on request.

Endpoints:
  POST /scrape          {"url": "...", "depth": 3, "max_pages": 50,
                         "max_concurrent_requests": 5} -> {"emails": [...]}
  GET  /healthz         liveness check
  GET  /sessions/<id>   a stored session (unless --no-history)

Omitted limits in a request take the values of --depth, --max-pages, and
--concurrency. With --redis-addr, completed results are cached per seed
and limits for --cache-ttl.

Examples:
  # Listen on the default port 6662
  mailspider serve

  # Stop every crawl after two minutes and cache results in Redis
  mailspider serve --request-timeout 2m --redis-addr localhost:6379

  # Try it
  curl -X POST -d '{"url": "example.com"}' http://localhost:6662/scrape`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	addCrawlFlags(cmd)

	cmd.Flags().StringP("listen", "l", config.DefaultListenAddr,
		"Address to listen on")
	cmd.Flags().Duration("request-timeout", 0,
		"Maximum duration of one crawl (0 means no limit)")
	cmd.Flags().String("redis-addr", "",
		"Redis address for caching results (empty disables the cache)")
	cmd.Flags().Duration("cache-ttl", config.DefaultCacheTTL,
		"Lifetime of a cached result")
	cmd.Flags().Bool("no-history", false,
		"Do not store sessions in the history database")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildServeConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd, slog.LevelInfo)
	slog.SetDefault(logger)

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	srv, cleanup, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	return srv.ListenAndServe(ctx, cfg.ListenAddr)
}

// buildServeConfig creates a Config from cobra command flags.
func buildServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	if err := readCrawlFlags(cmd, cfg); err != nil {
		return nil, err
	}

	var err error
	if cfg.ListenAddr, err = cmd.Flags().GetString("listen"); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = cmd.Flags().GetDuration("request-timeout"); err != nil {
		return nil, err
	}
	if cfg.RedisAddr, err = cmd.Flags().GetString("redis-addr"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = cmd.Flags().GetDuration("cache-ttl"); err != nil {
		return nil, err
	}

	noHistory, err := cmd.Flags().GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory

	return cfg, nil
}

// newServer wires the server with its optional cache and history store.
// cleanup releases them and must be called once the server has stopped.
func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.Server, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("failed to release resource", "error", err)
			}
		}
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithRequestTimeout(cfg.RequestTimeout),
		server.WithDefaultLimits(crawler.Limits{
			MaxDepth:       cfg.MaxDepth,
			MaxPages:       cfg.MaxPages,
			MaxConcurrency: cfg.Concurrency,
		}),
	}

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		closers = append(closers, db.Close)
		opts = append(opts, server.WithStore(db))
		logger.Info("database opened", "path", db.Path())
	}

	if cfg.RedisAddr != "" {
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.CacheTTL)
		closers = append(closers, rc.Close)

		pingCtx, cancel := context.WithTimeout(ctx, cachePingTimeout)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		opts = append(opts, server.WithCache(rc))
		logger.Info("result cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	}

	return server.New(newSiteCrawler(cfg, logger), opts...), cleanup, nil
}
