package crawler

import (
	"fmt"
	"sync/atomic"
)

// Limits bounds a crawl session.
type Limits struct {
	// MaxDepth is the deepest task that may be fetched. The seed has depth 0,
	// so 0 means only the seed page.
	MaxDepth int

	// MaxPages is the maximum number of fetches admitted in the session.
	MaxPages int

	// MaxConcurrency is the number of fetches allowed in flight at once.
	MaxConcurrency int
}

// Validate checks that the limits are usable.
func (l Limits) Validate() error {
	if l.MaxDepth < 0 {
		return fmt.Errorf("%w: max depth must be >= 0, got %d", ErrInvalidLimits, l.MaxDepth)
	}
	if l.MaxPages < 1 {
		return fmt.Errorf("%w: max pages must be >= 1, got %d", ErrInvalidLimits, l.MaxPages)
	}
	if l.MaxConcurrency < 1 {
		return fmt.Errorf("%w: max concurrency must be >= 1, got %d", ErrInvalidLimits, l.MaxConcurrency)
	}
	return nil
}

// Budget enforces the depth and page limits of a session.
// The page counter only ever moves through TryReserveSlot, so
// Crawled() <= MaxPages holds at every instant.
type Budget struct {
	maxDepth int
	maxPages int64
	crawled  atomic.Int64
}

// NewBudget creates a Budget with no pages crawled.
func NewBudget(maxDepth, maxPages int) *Budget {
	return &Budget{
		maxDepth: maxDepth,
		maxPages: int64(maxPages),
	}
}

// AllowsDepth reports whether a task at depth may be fetched.
func (b *Budget) AllowsDepth(depth int) bool {
	return depth >= 0 && depth <= b.maxDepth
}

// TryReserveSlot grants one fetch if fewer than MaxPages have been granted
// so far. The check and the increment happen as one atomic step.
func (b *Budget) TryReserveSlot() bool {
	for {
		n := b.crawled.Load()
		if n >= b.maxPages {
			return false
		}
		if b.crawled.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Crawled returns the number of granted fetches.
func (b *Budget) Crawled() int {
	return int(b.crawled.Load())
}

// Exhausted reports whether every page slot has been granted.
func (b *Budget) Exhausted() bool {
	return b.crawled.Load() >= b.maxPages
}
