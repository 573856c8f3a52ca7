package crawler

import (
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nao1215/mailspider/internal/model"
)

// Session holds the mutable state of one crawl. Sessions never share state
// with each other, so concurrent crawls of different seeds are independent.
type Session struct {
	id        string
	seed      *url.URL
	rootScope string
	limits    Limits
	startedAt time.Time

	visited *VisitedSet
	budget  *Budget
	emails  *FoundEmails
	permits *semaphore.Weighted

	mu       sync.Mutex
	failures []model.FetchFailure
}

func newSession(seed *url.URL, limits Limits) *Session {
	return &Session{
		id:        uuid.NewString(),
		seed:      seed,
		rootScope: seed.Host,
		limits:    limits,
		startedAt: time.Now(),
		visited:   NewVisitedSet(),
		budget:    NewBudget(limits.MaxDepth, limits.MaxPages),
		emails:    NewFoundEmails(),
		permits:   semaphore.NewWeighted(int64(limits.MaxConcurrency)),
	}
}

func (s *Session) recordFailure(task model.CrawlTask, err error) {
	failure := model.FetchFailure{
		URL:   task.URL,
		Depth: task.Depth,
		Error: err.Error(),
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		failure.StatusCode = fetchErr.StatusCode
	}

	s.mu.Lock()
	s.failures = append(s.failures, failure)
	s.mu.Unlock()
}

// result snapshots the session into a CrawlResult.
func (s *Session) result(status model.SessionStatus) *model.CrawlResult {
	s.mu.Lock()
	failures := make([]model.FetchFailure, len(s.failures))
	copy(failures, s.failures)
	s.mu.Unlock()

	return &model.CrawlResult{
		SessionID:      s.id,
		SeedURL:        s.seed.String(),
		RootScope:      s.rootScope,
		Emails:         s.emails.Sorted(),
		URLs:           s.visited.Sorted(),
		PagesCrawled:   s.budget.Crawled(),
		PagesFailed:    len(failures),
		Failures:       failures,
		MaxDepth:       s.limits.MaxDepth,
		MaxPages:       s.limits.MaxPages,
		MaxConcurrency: s.limits.MaxConcurrency,
		StartedAt:      s.startedAt,
		FinishedAt:     time.Now(),
		Status:         status,
	}
}
