package model

import (
	"sort"
	"time"
)

// CrawlTask is a single URL scheduled for fetching at a given depth.
// Tasks are created by the crawl engine when a link survives filtering
// and are consumed exactly once.
type CrawlTask struct {
	// URL is the absolute URL to fetch.
	URL string `json:"url"`

	// Depth is the distance from the seed page. The seed task has depth 0.
	Depth int `json:"depth"`
}

// TaskState is the lifecycle state of a CrawlTask.
type TaskState int

const (
	// TaskPending is a task that has been created but not admitted yet.
	TaskPending TaskState = iota
	// TaskFetching is a task whose fetch has started.
	TaskFetching
	// TaskExpanded is a task that was fetched and whose links were expanded.
	TaskExpanded
	// TaskFailed is a task whose fetch failed (transport error or non-2xx).
	TaskFailed
	// TaskSkipped is a task that was refused by the depth or page budget, or
	// whose redirect led to a page another task had already claimed.
	TaskSkipped
)

// String returns the lowercase name of the state.
func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskFetching:
		return "fetching"
	case TaskExpanded:
		return "expanded"
	case TaskFailed:
		return "failed"
	case TaskSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// SessionStatus is the overall status of a crawl session.
type SessionStatus string

const (
	// StatusInProgress means the crawl tree has not finished yet.
	StatusInProgress SessionStatus = "in_progress"
	// StatusCompleted means every branch of the crawl tree terminated.
	StatusCompleted SessionStatus = "completed"
	// StatusTimedOut means the caller's context ended before the tree
	// terminated. Results are partial.
	StatusTimedOut SessionStatus = "timed_out"
)

// FetchFailure records a branch that stopped because its fetch failed.
type FetchFailure struct {
	URL        string `json:"url"`
	Depth      int    `json:"depth"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error"`
}

// CrawlResult is the outcome of one crawl session.
type CrawlResult struct {
	// SessionID uniquely identifies the session.
	SessionID string `json:"session_id"`

	// SeedURL is the normalized URL the crawl started from.
	SeedURL string `json:"seed_url"`

	// RootScope is the host every crawled URL had to match.
	RootScope string `json:"root_scope"`

	// Emails is the deduplicated, sorted set of addresses found.
	Emails []string `json:"emails"`

	// URLs lists every URL claimed during the session, sorted.
	// This includes URLs that were discovered but refused by the budget.
	URLs []string `json:"urls"`

	// PagesCrawled is the number of fetches that were admitted.
	PagesCrawled int `json:"pages_crawled"`

	// PagesFailed is the number of admitted fetches that failed.
	PagesFailed int `json:"pages_failed"`

	// Failures describes each failed fetch.
	Failures []FetchFailure `json:"failures,omitempty"`

	// MaxDepth, MaxPages, and MaxConcurrency are the limits the session ran with.
	MaxDepth       int `json:"max_depth"`
	MaxPages       int `json:"max_pages"`
	MaxConcurrency int `json:"max_concurrency"`

	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Status     SessionStatus `json:"status"`
}

// Duration returns how long the session ran.
func (r *CrawlResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// TimedOut reports whether the session ended before the crawl tree finished.
func (r *CrawlResult) TimedOut() bool {
	return r.Status == StatusTimedOut
}

// HasEmails reports whether at least one address was found.
func (r *CrawlResult) HasEmails() bool {
	return len(r.Emails) > 0
}

// SortedCopy returns a sorted copy of the given strings.
func SortedCopy(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}
