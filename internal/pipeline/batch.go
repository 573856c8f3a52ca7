package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/mailspider/internal/model"
)

// DefaultBatchConcurrency is the number of seeds crawled at once when no
// WithConcurrency option is given.
const DefaultBatchConcurrency = 4

// CrawlFunc runs one crawl session for a seed. It returns an error only
// when the session could not start, such as for an invalid seed.
type CrawlFunc func(ctx context.Context, seed string) (*model.CrawlResult, error)

// BatchResult is the outcome for one seed of a batch.
type BatchResult struct {
	// Seed is the seed as given by the caller.
	Seed string

	// Result is nil when the session could not start.
	Result *model.CrawlResult

	// Err is the start-up error or the post-crawl pipeline error.
	Err error
}

// BatchProcessor crawls multiple seeds concurrently, each as an independent
// session, and passes every result through a post-crawl Pipeline.
type BatchProcessor struct {
	// crawl runs one session.
	crawl CrawlFunc

	// pipelineFactory creates a new pipeline for each result.
	// A nil factory skips post-crawl processing.
	pipelineFactory func() *Pipeline

	// concurrency is the maximum number of concurrent sessions.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent sessions.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithPipelineFactory sets the factory for post-crawl pipelines.
// It is called once per successful session.
func WithPipelineFactory(factory func() *Pipeline) BatchOption {
	return func(b *BatchProcessor) {
		b.pipelineFactory = factory
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(crawl CrawlFunc, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		crawl:       crawl,
		concurrency: DefaultBatchConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch crawls the seeds with at most the configured number of
// sessions in flight. Results are returned in seed order, including seeds
// that failed to start. The error is non-nil only when ctx ended before
// every seed was started.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, seeds []string) ([]BatchResult, error) {
	results := make([]BatchResult, len(seeds))
	for i, seed := range seeds {
		results[i].Seed = seed
	}
	var mu sync.Mutex

	err := bp.ProcessBatchWithCallback(ctx, seeds, func(r BatchResult, i int) {
		mu.Lock()
		results[i] = r
		mu.Unlock()
	})

	// Seeds that never started carry the cancellation error.
	if err != nil {
		for i := range results {
			if results[i].Result == nil && results[i].Err == nil {
				results[i].Err = err
			}
		}
	}

	return results, err
}

// ProcessBatchWithCallback crawls the seeds and calls callback as each
// session finishes. The callback runs on the session's goroutine and must
// be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	seeds []string,
	callback func(result BatchResult, index int),
) error {
	bp.logger.Info("starting batch",
		"total_seeds", len(seeds),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, seed := range seeds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			bp.logger.Info("crawling seed",
				"seed", seed,
				"index", i+1,
				"total", len(seeds),
			)

			callback(bp.processOne(gctx, seed), i)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch complete",
		"total_seeds", len(seeds),
		"elapsed", time.Since(startTime),
	)

	return err
}

// processOne crawls one seed and runs its pipeline. A session cut short by
// cancellation still has its partial result processed.
func (bp *BatchProcessor) processOne(ctx context.Context, seed string) BatchResult {
	br := BatchResult{Seed: seed}

	result, err := bp.crawl(ctx, seed)
	if err != nil {
		bp.logger.Warn("crawl failed to start", "seed", seed, "error", err)
		br.Err = err
		return br
	}
	br.Result = result

	bp.logger.Info("crawl completed",
		"seed", seed,
		"session", result.SessionID,
		"emails", len(result.Emails),
		"pages", result.PagesCrawled,
		"status", result.Status,
	)

	if bp.pipelineFactory != nil {
		if err := bp.pipelineFactory().Execute(context.WithoutCancel(ctx), result); err != nil {
			br.Err = err
		}
	}

	return br
}
