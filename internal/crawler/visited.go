package crawler

import (
	"sync"

	"github.com/nao1215/mailspider/internal/model"
)

// VisitedSet records the URLs claimed during one session.
// It only grows. TryClaim is the sole deduplication point of the crawl.
type VisitedSet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

// NewVisitedSet creates an empty VisitedSet.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{urls: make(map[string]struct{})}
}

// TryClaim inserts url if it is absent and reports whether this caller was
// the first to claim it.
func (v *VisitedSet) TryClaim(url string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.urls[url]; ok {
		return false
	}
	v.urls[url] = struct{}{}
	return true
}

// Sorted returns the claimed URLs in lexical order.
func (v *VisitedSet) Sorted() []string {
	v.mu.Lock()
	out := make([]string, 0, len(v.urls))
	for u := range v.urls {
		out = append(out, u)
	}
	v.mu.Unlock()
	return model.SortedCopy(out)
}

// FoundEmails is the set of addresses collected by a session.
// Membership uses exact, case-sensitive string equality.
type FoundEmails struct {
	mu     sync.Mutex
	emails map[string]struct{}
}

// NewFoundEmails creates an empty FoundEmails set.
func NewFoundEmails() *FoundEmails {
	return &FoundEmails{emails: make(map[string]struct{})}
}

// Add merges addrs into the set and returns how many were new.
func (f *FoundEmails) Add(addrs ...string) int {
	if len(addrs) == 0 {
		return 0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	added := 0
	for _, a := range addrs {
		if _, ok := f.emails[a]; ok {
			continue
		}
		f.emails[a] = struct{}{}
		added++
	}
	return added
}

// Len returns the number of distinct addresses.
func (f *FoundEmails) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emails)
}

// Sorted returns the addresses in lexical order.
func (f *FoundEmails) Sorted() []string {
	f.mu.Lock()
	out := make([]string, 0, len(f.emails))
	for e := range f.emails {
		out = append(out, e)
	}
	f.mu.Unlock()
	return model.SortedCopy(out)
}
