package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/mailspider/internal/config"
	"github.com/nao1215/mailspider/internal/database"
	"github.com/nao1215/mailspider/internal/pipeline"
	"github.com/nao1215/mailspider/internal/report"
)

// errSeedsFailed is returned when at least one seed could not be crawled.
var errSeedsFailed = errors.New("some seeds could not be crawled")

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Crawl websites and collect email addresses",
		Long: `Crawl fetches the seed page, follows links that stay on the seed's host,
and reports every email address found.

A seed without a scheme gets http://, and a bare registered domain such as
example.com is crawled as www.example.com. Several seeds are crawled as
independent sessions, --batch of them at a time.

Every session is stored in the history database (see 'mailspider history').
Press Ctrl+C to stop early; the addresses found so far are still reported.

Examples:
  # Crawl one site with the default limits (depth 3, 50 pages, 5 fetches)
  mailspider crawl example.com

  # Crawl deeper with more concurrency
  mailspider crawl -d 5 -p 200 --concurrency 10 https://www.example.com/

  # Crawl several sites, two at a time, and write urls.txt/emails.txt
  mailspider crawl -b 2 --output-dir out example.com example.org

  # Write a Markdown report to a file
  mailspider crawl -m -o report.md example.com

Configuration file (.mailspider) example:
  defaults:
    depth: 2
  sites:
    www.example.com:
      maxPages: 200
      cookie: "session_id=abc123"`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	addCrawlFlags(cmd)

	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of seeds crawled at the same time")
	cmd.Flags().Bool("no-history", false,
		"Do not store sessions in the history database")

	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed); a text summary still goes to stdout")
	cmd.Flags().String("output-dir", "",
		"Write urls.txt and emails.txt to this directory (one subdirectory per host for several seeds)")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildCrawlConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd, slog.LevelWarn)
	slog.SetDefault(logger)

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// buildCrawlConfig creates a Config from cobra command flags.
func buildCrawlConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	if err := readCrawlFlags(cmd, cfg); err != nil {
		return nil, err
	}

	var err error
	if cfg.BatchSize, err = cmd.Flags().GetInt("batch"); err != nil {
		return nil, err
	}

	noHistory, err := cmd.Flags().GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory

	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = cmd.Flags().GetString("output"); err != nil {
		return nil, err
	}
	if cfg.OutputDir, err = cmd.Flags().GetString("output-dir"); err != nil {
		return nil, err
	}

	cfg.Targets = args
	return cfg, nil
}

// runCrawl crawls every target and passes each result through the report,
// history, and line-files steps. Reports go to stdout, and also to the
// report file when one is configured; progress goes to stderr.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout, stderr io.Writer) error {
	if len(cfg.Targets) == 0 {
		return config.ErrNoTarget
	}

	logger.Info("starting crawl",
		"targets", cfg.Targets,
		"batch_size", cfg.BatchSize,
		"save_to_db", cfg.SaveToDB,
	)

	var db *database.CrawlDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
	}

	var reportFile io.Writer
	if cfg.ReportFile != "" {
		f, err := openReportFile(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		reportFile = f
	}

	var mu sync.Mutex
	bp := pipeline.NewBatchProcessor(
		newSiteCrawler(cfg, logger).crawlSeed,
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
		pipeline.WithPipelineFactory(func() *pipeline.Pipeline {
			return newResultPipeline(cfg, db, newSessionReportWriter(cfg, stdout, reportFile), &mu, logger)
		}),
	)

	startTime := time.Now()
	total := len(cfg.Targets)
	if total > 1 {
		fmt.Fprintf(stderr, "Crawling %d seeds (concurrency: %d)...\n", total, cfg.BatchSize)
	}

	failed := 0
	batchErr := bp.ProcessBatchWithCallback(ctx, cfg.Targets, func(r pipeline.BatchResult, index int) {
		mu.Lock()
		defer mu.Unlock()

		switch {
		case r.Result == nil:
			failed++
			fmt.Fprintf(stderr, "[%d/%d] Crawl error for %s: %v\n", index+1, total, r.Seed, r.Err)
		case r.Err != nil:
			fmt.Fprintf(stderr, "[%d/%d] Crawled %s with errors: %v\n", index+1, total, r.Seed, r.Err)
		default:
			fmt.Fprintf(stderr, "[%d/%d] Crawled %s: %d pages, %d addresses (%s)\n",
				index+1, total, r.Result.SeedURL, r.Result.PagesCrawled, len(r.Result.Emails), r.Result.Status)
		}
	})

	fmt.Fprintf(stderr, "Finished in %s\n", time.Since(startTime).Round(time.Millisecond))

	if batchErr != nil {
		return fmt.Errorf("crawl interrupted: %w", batchErr)
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errSeedsFailed, failed, total)
	}
	return nil
}

// newResultPipeline builds the post-crawl steps for one session.
func newResultPipeline(cfg *config.Config, db *database.CrawlDB, w report.Writer, mu *sync.Mutex, logger *slog.Logger) *pipeline.Pipeline {
	p := pipeline.New(
		pipeline.WithLogger(logger),
		pipeline.WithContinueOnError(true),
	)

	p.AddStep(pipeline.NewReportStep(w, mu))
	if db != nil {
		p.AddStep(pipeline.NewHistoryStep(db))
	}
	if cfg.OutputDir != "" {
		p.AddStep(pipeline.NewLineFilesStep(cfg.OutputDir,
			pipeline.WithPerScopeDir(len(cfg.Targets) > 1)))
	}

	return p
}

// newSessionReportWriter returns the report writer for one session. With a
// report file the chosen format goes to the file and the text summary still
// goes to stdout.
func newSessionReportWriter(cfg *config.Config, stdout, reportFile io.Writer) report.Writer {
	if reportFile == nil {
		return newReportWriter(cfg, stdout)
	}
	return report.NewMultiWriter(
		newReportWriter(cfg, reportFile),
		report.NewSimpleWriter(stdout),
	)
}

// newReportWriter returns the writer for the configured report format.
func newReportWriter(cfg *config.Config, out io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(out, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}

// openReportFile creates the report file and its parent directories.
// Reports list harvested addresses, so the file is readable by the owner only.
func openReportFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
