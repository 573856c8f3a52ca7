package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/mailspider/internal/email"
	"github.com/nao1215/mailspider/internal/model"
	"github.com/nao1215/mailspider/internal/scope"
)

// TaskObserver is called on every state transition of a task.
// It is called from many goroutines at once and must not block.
type TaskObserver func(task model.CrawlTask, state model.TaskState)

// Engine runs crawl sessions. An Engine holds no per-session state and may
// run any number of sessions concurrently.
type Engine struct {
	fetcher      Fetcher
	links        LinkExtractor
	extractor    *email.Extractor
	logger       *slog.Logger
	fetchTimeout time.Duration
	observer     TaskObserver
	mailto       bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithFetcher sets the page fetcher. The default is an HTTPFetcher.
func WithFetcher(f Fetcher) Option {
	return func(e *Engine) {
		if f != nil {
			e.fetcher = f
		}
	}
}

// WithLinkExtractor sets the link extractor. The default is an
// HTMLLinkExtractor.
func WithLinkExtractor(l LinkExtractor) Option {
	return func(e *Engine) {
		if l != nil {
			e.links = l
		}
	}
}

// WithEmailExtractor sets the email extractor.
func WithEmailExtractor(x *email.Extractor) Option {
	return func(e *Engine) {
		if x != nil {
			e.extractor = x
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithFetchTimeout bounds every single fetch. Zero means no bound beyond
// the fetcher's own.
func WithFetchTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.fetchTimeout = d
	}
}

// WithTaskObserver registers a callback for task state transitions.
func WithTaskObserver(obs TaskObserver) Option {
	return func(e *Engine) {
		e.observer = obs
	}
}

// WithMailto enables or disables reading addresses from mailto: links in
// addition to the page text. It is enabled by default.
func WithMailto(enabled bool) Option {
	return func(e *Engine) {
		e.mailto = enabled
	}
}

// NewEngine creates an Engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		fetcher:   NewHTTPFetcher(),
		links:     NewHTMLLinkExtractor(),
		extractor: email.NewExtractor(),
		logger:    slog.Default(),
		mailto:    true,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RunCrawl crawls seedURL with a default Engine configured by opts.
// It blocks until the crawl tree terminates or ctx ends.
func RunCrawl(ctx context.Context, seedURL string, maxDepth, maxPages, maxConcurrency int, opts ...Option) (*model.CrawlResult, error) {
	return NewEngine(opts...).Run(ctx, seedURL, Limits{
		MaxDepth:       maxDepth,
		MaxPages:       maxPages,
		MaxConcurrency: maxConcurrency,
	})
}

// Run crawls from seedURL within limits and returns the session result.
//
// The only errors are an invalid seed or invalid limits. Failed fetches are
// recorded in the result. If ctx ends first, no further fetches are admitted,
// in-flight work is abandoned, and the partial result is returned with
// status timed_out.
func (e *Engine) Run(ctx context.Context, seedURL string, limits Limits) (*model.CrawlResult, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	seed, err := parseSeed(seedURL)
	if err != nil {
		return nil, err
	}

	s := newSession(seed, limits)
	logger := e.logger.With("session", s.id)
	logger.Info("crawl started",
		"seed", seed.String(),
		"scope", s.rootScope,
		"max_depth", limits.MaxDepth,
		"max_pages", limits.MaxPages,
		"max_concurrency", limits.MaxConcurrency,
	)

	root := model.CrawlTask{URL: seed.String(), Depth: 0}
	s.visited.TryClaim(root.URL)
	e.crawl(ctx, s, logger, root)

	status := model.StatusCompleted
	if ctx.Err() != nil {
		status = model.StatusTimedOut
	}
	result := s.result(status)

	logger.Info("crawl finished",
		"status", string(result.Status),
		"pages", result.PagesCrawled,
		"failed", result.PagesFailed,
		"urls", len(result.URLs),
		"emails", len(result.Emails),
		"duration", result.Duration(),
	)
	return result, nil
}

// crawl processes one task and, if it expands, all of its descendants.
// It returns once the subtree rooted at task has terminated.
func (e *Engine) crawl(ctx context.Context, s *Session, logger *slog.Logger, task model.CrawlTask) {
	e.notify(task, model.TaskPending)

	resp, ok := e.admitAndFetch(ctx, s, logger, task)
	if !ok {
		return
	}

	body := string(resp.Body)
	found := e.extractor.Extract(body)
	if e.mailto {
		found = append(found, e.extractor.ExtractMailto(body)...)
	}
	if added := s.emails.Add(found...); added > 0 {
		logger.Debug("emails found", "url", task.URL, "new", added)
	}

	children := e.expand(s, logger, resp, task)
	e.notify(task, model.TaskExpanded)

	if len(children) == 0 {
		return
	}

	var g errgroup.Group
	for _, child := range children {
		g.Go(func() error {
			e.crawl(ctx, s, logger, child)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // branches never return errors
}

// admitAndFetch runs the admission check and the fetch. It reports false
// when the task ended as Skipped or Failed.
func (e *Engine) admitAndFetch(ctx context.Context, s *Session, logger *slog.Logger, task model.CrawlTask) (*Response, bool) {
	if !s.budget.AllowsDepth(task.Depth) || s.budget.Exhausted() {
		e.notify(task, model.TaskSkipped)
		return nil, false
	}

	if err := s.permits.Acquire(ctx, 1); err != nil {
		e.notify(task, model.TaskSkipped)
		return nil, false
	}
	// Acquire may succeed on an already cancelled context.
	if ctx.Err() != nil || !s.budget.TryReserveSlot() {
		s.permits.Release(1)
		e.notify(task, model.TaskSkipped)
		return nil, false
	}

	e.notify(task, model.TaskFetching)
	logger.Debug("crawling", "url", task.URL, "depth", task.Depth)

	claims := newRedirectClaims(s, task.URL)
	resp, err := e.fetch(WithRedirectGuard(ctx, claims.guard), task.URL)
	s.permits.Release(1)

	if errors.Is(err, ErrRedirectClaimed) {
		logger.Debug("redirect target already claimed", "url", task.URL)
		e.notify(task, model.TaskSkipped)
		return nil, false
	}
	if err != nil {
		s.recordFailure(task, err)
		logger.Warn("fetch failed", "url", task.URL, "depth", task.Depth, "error", err)
		e.notify(task, model.TaskFailed)
		return nil, false
	}
	// Fetchers that follow redirects on their own are checked here instead.
	if !claims.claimFinal(resp.FinalURL) {
		logger.Debug("redirect target already claimed", "url", task.URL, "final_url", resp.FinalURL)
		e.notify(task, model.TaskSkipped)
		return nil, false
	}
	return resp, true
}

// redirectClaims claims the in-scope redirect targets of one fetch in the
// session's visited set, so a page reached both by a link and by a
// redirect is processed once. It is used by one fetch at a time.
type redirectClaims struct {
	s       *Session
	claimed []string
}

func newRedirectClaims(s *Session, taskURL string) *redirectClaims {
	return &redirectClaims{s: s, claimed: []string{taskURL}}
}

// guard reports whether the fetch may continue to target.
func (r *redirectClaims) guard(target *url.URL) bool {
	u, err := scope.Resolve(target, "")
	if err != nil || !scope.IsInScope(u, r.s.rootScope) {
		return true
	}
	link := u.String()
	if slices.Contains(r.claimed, link) {
		return true
	}
	if !r.s.visited.TryClaim(link) {
		return false
	}
	r.claimed = append(r.claimed, link)
	return true
}

// claimFinal reports whether the page at finalURL belongs to this fetch.
func (r *redirectClaims) claimFinal(finalURL string) bool {
	if finalURL == "" {
		return true
	}
	u, err := url.Parse(finalURL)
	if err != nil {
		return true
	}
	return r.guard(u)
}

func (e *Engine) fetch(ctx context.Context, pageURL string) (*Response, error) {
	if e.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.fetchTimeout)
		defer cancel()
	}

	resp, err := e.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			err = &FetchError{URL: pageURL, Err: err}
		}
		return nil, err
	}
	if resp == nil {
		return nil, &FetchError{URL: pageURL, Err: ErrNoResponse}
	}
	if resp.StatusCode != 0 && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode, Err: ErrUnexpectedStatus}
	}
	return resp, nil
}

// expand turns the links of a fetched page into new tasks. A link becomes a
// task only if it resolves, is in scope, and has not been claimed before.
func (e *Engine) expand(s *Session, logger *slog.Logger, resp *Response, task model.CrawlTask) []model.CrawlTask {
	if !isMarkup(resp.ContentType) {
		return nil
	}

	baseURL := resp.FinalURL
	if baseURL == "" {
		baseURL = task.URL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	hrefs, err := e.links.ExtractLinks(string(resp.Body), baseURL)
	if err != nil {
		logger.Debug("link extraction failed", "url", task.URL, "error", err)
		return nil
	}

	var children []model.CrawlTask
	for _, href := range hrefs {
		u, err := scope.Resolve(base, href)
		if err != nil {
			continue
		}
		if !scope.IsInScope(u, s.rootScope) {
			continue
		}
		link := u.String()
		if !s.visited.TryClaim(link) {
			continue
		}
		children = append(children, model.CrawlTask{URL: link, Depth: task.Depth + 1})
	}
	return children
}

func (e *Engine) notify(task model.CrawlTask, state model.TaskState) {
	if e.observer != nil {
		e.observer(task, state)
	}
}

// parseSeed checks that seed is an absolute http(s) URL and canonicalizes it.
func parseSeed(seed string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(seed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme must be http or https: %q", ErrInvalidSeed, seed)
	}
	if _, err := scope.RootScope(u.String()); err != nil {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidSeed, seed)
	}

	canonical, err := scope.Resolve(u, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	return canonical, nil
}

// isMarkup reports whether a page with the given content type can carry
// links. An empty content type is assumed to be HTML.
func isMarkup(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "html") || strings.Contains(ct, "xml")
}
