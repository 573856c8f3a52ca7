package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/mailspider/internal/model"
)

// fakePage is a canned response served by fakeFetcher.
type fakePage struct {
	body   string
	status int
	err    error

	// redirect makes the fetcher follow a redirect on its own and serve
	// the target page instead.
	redirect string
}

// fakeFetcher serves pages from a map and records every fetch.
type fakeFetcher struct {
	pages map[string]fakePage
	delay time.Duration
	block bool

	mu     sync.Mutex
	counts map[string]int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeFetcher(pages map[string]fakePage) *fakeFetcher {
	return &fakeFetcher{
		pages:  pages,
		counts: make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	f.mu.Lock()
	f.counts[url]++
	f.mu.Unlock()

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		current := f.maxInFlight.Load()
		if n <= current || f.maxInFlight.CompareAndSwap(current, n) {
			break
		}
	}

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	finalURL := url
	page, ok := f.pages[url]
	if ok && page.redirect != "" {
		finalURL = page.redirect
		page, ok = f.pages[finalURL]
	}
	if !ok {
		return nil, &FetchError{URL: url, StatusCode: http.StatusNotFound, Err: ErrUnexpectedStatus}
	}
	if page.err != nil {
		return nil, page.err
	}
	status := page.status
	if status == 0 {
		status = http.StatusOK
	}
	if status < 200 || status > 299 {
		return nil, &FetchError{URL: url, StatusCode: status, Err: ErrUnexpectedStatus}
	}
	return &Response{
		URL:         url,
		FinalURL:    finalURL,
		StatusCode:  status,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(page.body),
	}, nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[url]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.counts {
		n += c
	}
	return n
}

func (f *fakeFetcher) maxCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	highest := 0
	for _, c := range f.counts {
		if c > highest {
			highest = c
		}
	}
	return highest
}

// linkPage renders an HTML page linking to every href.
func linkPage(text string, hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><p>")
	b.WriteString(text)
	b.WriteString("</p>")
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, h)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// stateRecorder collects observer callbacks.
type stateRecorder struct {
	mu     sync.Mutex
	events []recordedState
}

type recordedState struct {
	task  model.CrawlTask
	state model.TaskState
}

func (r *stateRecorder) observe(task model.CrawlTask, state model.TaskState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedState{task: task, state: state})
}

func (r *stateRecorder) statesFor(url string) []model.TaskState {
	r.mu.Lock()
	defer r.mu.Unlock()
	var states []model.TaskState
	for _, ev := range r.events {
		if ev.task.URL == url {
			states = append(states, ev.state)
		}
	}
	return states
}

func (r *stateRecorder) maxFetchedDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	highest := -1
	for _, ev := range r.events {
		if ev.state == model.TaskFetching && ev.task.Depth > highest {
			highest = ev.task.Depth
		}
	}
	return highest
}

const seed = "http://example.com/"

func TestRunCrawl(t *testing.T) {
	t.Parallel()

	t.Run("single page with one address", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher(map[string]fakePage{
			"http://example.com/": {body: "contact us: a@b.com"},
		})

		result, err := RunCrawl(context.Background(), seed, 3, 50, 5, WithFetcher(fetcher))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !reflect.DeepEqual(result.Emails, []string{"a@b.com"}) {
			t.Errorf("expected [a@b.com], got %v", result.Emails)
		}
		if result.PagesCrawled != 1 {
			t.Errorf("expected 1 page crawled, got %d", result.PagesCrawled)
		}
		if result.Status != model.StatusCompleted {
			t.Errorf("expected status completed, got %s", result.Status)
		}
		if result.RootScope != "example.com" {
			t.Errorf("expected root scope example.com, got %q", result.RootScope)
		}
		if result.SessionID == "" {
			t.Error("expected a session id")
		}
	})

	t.Run("page budget is never exceeded under fan-out", func(t *testing.T) {
		t.Parallel()

		pages := map[string]fakePage{}
		var hrefs []string
		for i := 0; i < 10; i++ {
			href := fmt.Sprintf("/page%d", i)
			hrefs = append(hrefs, href)
			pages["http://example.com"+href] = fakePage{body: linkPage(fmt.Sprintf("p%d@example.com", i))}
		}
		pages[seed] = fakePage{body: linkPage("home", hrefs...)}
		fetcher := newFakeFetcher(pages)

		result, err := RunCrawl(context.Background(), seed, 3, 3, 8, WithFetcher(fetcher))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := fetcher.total(); got != 3 {
			t.Errorf("expected exactly 3 fetches, got %d", got)
		}
		if result.PagesCrawled != 3 {
			t.Errorf("expected 3 pages crawled, got %d", result.PagesCrawled)
		}
		if len(result.Emails) != 2 {
			t.Errorf("expected 2 emails from the 2 admitted children, got %v", result.Emails)
		}
		// All 10 children were discovered and claimed even though most were skipped.
		if len(result.URLs) != 11 {
			t.Errorf("expected 11 claimed urls, got %d", len(result.URLs))
		}
	})

	t.Run("self link is crawled once", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher(map[string]fakePage{
			"http://example.com/": {body: linkPage("loop", "/", "http://example.com/#top", "http://example.com")},
		})

		result, err := RunCrawl(context.Background(), seed, 5, 50, 5, WithFetcher(fetcher))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := fetcher.count(seed); got != 1 {
			t.Errorf("expected seed fetched once, got %d", got)
		}
		if result.PagesCrawled != 1 {
			t.Errorf("expected 1 page crawled, got %d", result.PagesCrawled)
		}
	})

	t.Run("max depth zero fetches only the seed", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher(map[string]fakePage{
			"http://example.com/":  {body: linkPage("root@example.com", "/a", "/b")},
			"http://example.com/a": {body: "a@example.com"},
			"http://example.com/b": {body: "b@example.com"},
		})
		recorder := &stateRecorder{}

		result, err := RunCrawl(context.Background(), seed, 0, 50, 5,
			WithFetcher(fetcher), WithTaskObserver(recorder.observe))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := fetcher.total(); got != 1 {
			t.Errorf("expected 1 fetch, got %d", got)
		}
		if !reflect.DeepEqual(result.Emails, []string{"root@example.com"}) {
			t.Errorf("unexpected emails: %v", result.Emails)
		}
		wantURLs := []string{"http://example.com/", "http://example.com/a", "http://example.com/b"}
		if !reflect.DeepEqual(result.URLs, wantURLs) {
			t.Errorf("expected discovered urls %v, got %v", wantURLs, result.URLs)
		}
		states := recorder.statesFor("http://example.com/a")
		if !reflect.DeepEqual(states, []model.TaskState{model.TaskPending, model.TaskSkipped}) {
			t.Errorf("expected child pending then skipped, got %v", states)
		}
	})

	t.Run("external links are never fetched or claimed", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher(map[string]fakePage{
			"http://example.com/":       {body: linkPage("", "https://external.example/", "http://sub.example.com/", "http://example.com:8080/")},
			"https://external.example/": {body: "x@external.example"},
		})

		result, err := RunCrawl(context.Background(), seed, 3, 50, 5, WithFetcher(fetcher))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := fetcher.count("https://external.example/"); got != 0 {
			t.Errorf("external page fetched %d times", got)
		}
		if !reflect.DeepEqual(result.URLs, []string{seed}) {
			t.Errorf("expected only the seed to be claimed, got %v", result.URLs)
		}
	})

	t.Run("pages deeper than max depth are never fetched", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher(map[string]fakePage{
			"http://example.com/":  {body: linkPage("", "/1")},
			"http://example.com/1": {body: linkPage("", "/2")},
			"http://example.com/2": {body: linkPage("", "/3")},
			"http://example.com/3": {body: linkPage("deep@example.com", "/4")},
		})
		recorder := &stateRecorder{}

		result, err := RunCrawl(context.Background(), seed, 2, 50, 2,
			WithFetcher(fetcher), WithTaskObserver(recorder.observe))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := recorder.maxFetchedDepth(); got != 2 {
			t.Errorf("expected deepest fetch at depth 2, got %d", got)
		}
		if got := fetcher.count("http://example.com/3"); got != 0 {
			t.Errorf("depth 3 page fetched %d times", got)
		}
		if result.HasEmails() {
			t.Errorf("expected no emails, got %v", result.Emails)
		}
	})

	t.Run("dense graph fetches every url at most once", func(t *testing.T) {
		t.Parallel()

		const n = 15
		var hrefs []string
		for i := 0; i < n; i++ {
			hrefs = append(hrefs, fmt.Sprintf("/n%d", i))
		}
		pages := map[string]fakePage{seed: {body: linkPage("", hrefs...)}}
		for _, h := range hrefs {
			pages["http://example.com"+h] = fakePage{body: linkPage("", append(hrefs, "/")...)}
		}
		fetcher := newFakeFetcher(pages)
		fetcher.delay = time.Millisecond

		result, err := RunCrawl(context.Background(), seed, 4, 100, 8, WithFetcher(fetcher))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := fetcher.maxCount(); got != 1 {
			t.Errorf("expected every url fetched once, some url fetched %d times", got)
		}
		if result.PagesCrawled != n+1 {
			t.Errorf("expected %d pages crawled, got %d", n+1, result.PagesCrawled)
		}
	})

	t.Run("concurrency never exceeds the permit pool", func(t *testing.T) {
		t.Parallel()

		pages := map[string]fakePage{}
		var hrefs []string
		for i := 0; i < 20; i++ {
			href := fmt.Sprintf("/c%d", i)
			hrefs = append(hrefs, href)
			pages["http://example.com"+href] = fakePage{body: "leaf"}
		}
		pages[seed] = fakePage{body: linkPage("", hrefs...)}
		fetcher := newFakeFetcher(pages)
		fetcher.delay = 5 * time.Millisecond

		if _, err := RunCrawl(context.Background(), seed, 1, 50, 3, WithFetcher(fetcher)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got := fetcher.maxInFlight.Load(); got > 3 {
			t.Errorf("expected at most 3 concurrent fetches, observed %d", got)
		}
		if got := fetcher.total(); got != 21 {
			t.Errorf("expected 21 fetches, got %d", got)
		}
	})

	t.Run("single permit does not deadlock a deep tree", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher(map[string]fakePage{
			"http://example.com/":    {body: linkPage("", "/a", "/b")},
			"http://example.com/a":   {body: linkPage("", "/a/1", "/a/2")},
			"http://example.com/b":   {body: linkPage("", "/b/1")},
			"http://example.com/a/1": {body: "a1@example.com"},
			"http://example.com/a/2": {body: "a2@example.com"},
			"http://example.com/b/1": {body: "b1@example.com"},
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		result, err := RunCrawl(ctx, seed, 3, 50, 1, WithFetcher(fetcher))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Status != model.StatusCompleted {
			t.Fatalf("expected completed crawl, got %s", result.Status)
		}
		want := []string{"a1@example.com", "a2@example.com", "b1@example.com"}
		if !reflect.DeepEqual(result.Emails, want) {
			t.Errorf("expected %v, got %v", want, result.Emails)
		}
	})

	t.Run("failed branch does not fail the session", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher(map[string]fakePage{
			"http://example.com/":       {body: linkPage("home@example.com", "/broken", "/down", "/ok")},
			"http://example.com/broken": {status: http.StatusInternalServerError},
			"http://example.com/down":   {err: errors.New("connection refused")},
			"http://example.com/ok":     {body: "ok@example.com"},
		})
		recorder := &stateRecorder{}

		result, err := RunCrawl(context.Background(), seed, 2, 50, 3,
			WithFetcher(fetcher), WithTaskObserver(recorder.observe))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"home@example.com", "ok@example.com"}
		if !reflect.DeepEqual(result.Emails, want) {
			t.Errorf("expected %v, got %v", want, result.Emails)
		}
		if result.PagesFailed != 2 {
			t.Errorf("expected 2 failed pages, got %d", result.PagesFailed)
		}
		if result.PagesCrawled != 4 {
			t.Errorf("expected 4 admitted pages, got %d", result.PagesCrawled)
		}

		var status500 bool
		for _, f := range result.Failures {
			if f.URL == "http://example.com/broken" && f.StatusCode == http.StatusInternalServerError {
				status500 = true
			}
		}
		if !status500 {
			t.Errorf("expected a 500 failure record, got %+v", result.Failures)
		}

		states := recorder.statesFor("http://example.com/broken")
		wantStates := []model.TaskState{model.TaskPending, model.TaskFetching, model.TaskFailed}
		if !reflect.DeepEqual(states, wantStates) {
			t.Errorf("expected %v, got %v", wantStates, states)
		}
	})

	t.Run("mailto links are read unless disabled", func(t *testing.T) {
		t.Parallel()

		body := `<html><body><a href="mailto:info%40example.com">write</a></body></html>`

		fetcher := newFakeFetcher(map[string]fakePage{seed: {body: body}})
		result, err := RunCrawl(context.Background(), seed, 0, 1, 1, WithFetcher(fetcher))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(result.Emails, []string{"info@example.com"}) {
			t.Errorf("expected decoded mailto address, got %v", result.Emails)
		}

		fetcher = newFakeFetcher(map[string]fakePage{seed: {body: body}})
		result, err = RunCrawl(context.Background(), seed, 0, 1, 1, WithFetcher(fetcher), WithMailto(false))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.HasEmails() {
			t.Errorf("expected no emails with mailto disabled, got %v", result.Emails)
		}
	})

	t.Run("redirect onto a linked page is processed once", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher(map[string]fakePage{
			"http://example.com/":  {body: linkPage("", "/a", "/b")},
			"http://example.com/a": {redirect: "http://example.com/b"},
			"http://example.com/b": {body: linkPage("b@example.com", "/c")},
			"http://example.com/c": {body: "c@example.com"},
		})
		recorder := &stateRecorder{}

		result, err := RunCrawl(context.Background(), seed, 3, 50, 4,
			WithFetcher(fetcher), WithTaskObserver(recorder.observe))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		wantStates := []model.TaskState{model.TaskPending, model.TaskFetching, model.TaskSkipped}
		if states := recorder.statesFor("http://example.com/a"); !reflect.DeepEqual(states, wantStates) {
			t.Errorf("expected %v for the redirecting page, got %v", wantStates, states)
		}
		if states := recorder.statesFor("http://example.com/b"); states[len(states)-1] != model.TaskExpanded {
			t.Errorf("expected the linked page to be expanded, got %v", states)
		}
		if want := []string{"b@example.com", "c@example.com"}; !reflect.DeepEqual(result.Emails, want) {
			t.Errorf("expected %v, got %v", want, result.Emails)
		}
		if result.PagesFailed != 0 {
			t.Errorf("a duplicate redirect is not a failure, got %v", result.Failures)
		}
	})

	t.Run("redirect target is claimed for the session", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher(map[string]fakePage{
			"http://example.com/":    {body: linkPage("", "/old")},
			"http://example.com/old": {redirect: "http://example.com/new"},
			"http://example.com/new": {body: linkPage("n@example.com", "/new")},
		})

		result, err := RunCrawl(context.Background(), seed, 3, 50, 4, WithFetcher(fetcher))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if fetcher.count("http://example.com/new") != 0 {
			t.Error("a page reached through a redirect must not be queued again")
		}
		want := []string{"http://example.com/", "http://example.com/new", "http://example.com/old"}
		if !reflect.DeepEqual(result.URLs, want) {
			t.Errorf("expected %v, got %v", want, result.URLs)
		}
		if !reflect.DeepEqual(result.Emails, []string{"n@example.com"}) {
			t.Errorf("expected [n@example.com], got %v", result.Emails)
		}
	})

	t.Run("cancelled context returns partial result", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher(map[string]fakePage{seed: {body: "never"}})
		fetcher.block = true

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		result, err := RunCrawl(ctx, seed, 3, 50, 5, WithFetcher(fetcher))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.TimedOut() {
			t.Errorf("expected timed out status, got %s", result.Status)
		}
		if result.PagesFailed != 1 {
			t.Errorf("expected the blocked fetch to be recorded as failed, got %d", result.PagesFailed)
		}
	})

	t.Run("fetch timeout ends only the slow branch", func(t *testing.T) {
		t.Parallel()

		fetcher := newFakeFetcher(map[string]fakePage{
			"http://example.com/": {body: linkPage("seed@example.com")},
		})
		fetcher.delay = 200 * time.Millisecond

		result, err := RunCrawl(context.Background(), seed, 0, 1, 1,
			WithFetcher(fetcher), WithFetchTimeout(20*time.Millisecond))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Status != model.StatusCompleted {
			t.Errorf("expected completed status, got %s", result.Status)
		}
		if result.PagesFailed != 1 {
			t.Fatalf("expected 1 failed page, got %d", result.PagesFailed)
		}
		if !strings.Contains(result.Failures[0].Error, "deadline exceeded") {
			t.Errorf("expected deadline failure, got %q", result.Failures[0].Error)
		}
	})
}

func TestRunCrawlInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seed    string
		depth   int
		pages   int
		conc    int
		wantErr error
	}{
		{"relative seed", "/just/a/path", 1, 1, 1, ErrInvalidSeed},
		{"ftp seed", "ftp://example.com/", 1, 1, 1, ErrInvalidSeed},
		{"empty seed", "", 1, 1, 1, ErrInvalidSeed},
		{"negative depth", seed, -1, 1, 1, ErrInvalidLimits},
		{"zero pages", seed, 1, 0, 1, ErrInvalidLimits},
		{"zero concurrency", seed, 1, 1, 0, ErrInvalidLimits},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fetcher := newFakeFetcher(nil)
			_, err := RunCrawl(context.Background(), tt.seed, tt.depth, tt.pages, tt.conc, WithFetcher(fetcher))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
			if fetcher.total() != 0 {
				t.Errorf("expected no fetches on invalid input")
			}
		})
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher(map[string]fakePage{
		"http://one.example/": {body: "one@one.example"},
		"http://two.example/": {body: "two@two.example"},
	})
	engine := NewEngine(WithFetcher(fetcher))

	var wg sync.WaitGroup
	results := make([]*model.CrawlResult, 2)
	for i, s := range []string{"http://one.example/", "http://two.example/"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := engine.Run(context.Background(), s, Limits{MaxDepth: 1, MaxPages: 5, MaxConcurrency: 2})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results[i] = r
		}()
	}
	wg.Wait()

	if results[0] == nil || results[1] == nil {
		t.Fatal("expected both sessions to finish")
	}
	if !reflect.DeepEqual(results[0].Emails, []string{"one@one.example"}) {
		t.Errorf("session one leaked state: %v", results[0].Emails)
	}
	if !reflect.DeepEqual(results[1].Emails, []string{"two@two.example"}) {
		t.Errorf("session two leaked state: %v", results[1].Emails)
	}
	if results[0].SessionID == results[1].SessionID {
		t.Error("expected distinct session ids")
	}
}

func TestRunCrawlOverHTTP(t *testing.T) {
	t.Parallel()

	var hits sync.Map
	mux := http.NewServeMux()
	handle := func(path, body string) {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != path {
				http.NotFound(w, r)
				return
			}
			v, _ := hits.LoadOrStore(path, new(atomic.Int32))
			v.(*atomic.Int32).Add(1) //nolint:forcetypeassert
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(body)) //nolint:errcheck
		})
	}
	handle("/", `<html><body>Contact sales@example.org
		<a href="/team">Team</a><a href="/about#history">About</a>
		<a href="/">Home</a><a href="https://elsewhere.example/">Out</a></body></html>`)
	handle("/team", `<html><body><img src="team@2x.png"> jane.doe@example.org
		<a href="/about">About</a></body></html>`)
	handle("/about", `<html><body><a href="mailto:press%40example.org">Press</a></body></html>`)

	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := NewHTTPFetcher(WithHTTPClient(server.Client()))
	result, err := RunCrawl(context.Background(), server.URL, 3, 50, 4, WithFetcher(fetcher))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"jane.doe@example.org", "press@example.org", "sales@example.org"}
	if !reflect.DeepEqual(result.Emails, want) {
		t.Errorf("expected %v, got %v", want, result.Emails)
	}
	if result.PagesCrawled != 3 {
		t.Errorf("expected 3 pages crawled, got %d", result.PagesCrawled)
	}
	for _, path := range []string{"/", "/team", "/about"} {
		v, ok := hits.Load(path)
		if !ok {
			t.Errorf("%s was never fetched", path)
			continue
		}
		if n := v.(*atomic.Int32).Load(); n != 1 { //nolint:forcetypeassert
			t.Errorf("%s fetched %d times", path, n)
		}
	}
}

func TestRunCrawlRedirectOverHTTP(t *testing.T) {
	t.Parallel()

	var hits sync.Map
	count := func(path string) {
		v, _ := hits.LoadOrStore(path, new(atomic.Int32))
		v.(*atomic.Int32).Add(1) //nolint:forcetypeassert
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		count(r.URL.Path)
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(linkPage("", "/a", "/b"))) //nolint:errcheck
		case "/a":
			http.Redirect(w, r, "/b", http.StatusFound)
		case "/b":
			_, _ = w.Write([]byte(linkPage("b@example.org"))) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := NewHTTPFetcher(WithHTTPClient(server.Client()))
	result, err := RunCrawl(context.Background(), server.URL, 3, 50, 4, WithFetcher(fetcher))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for path, want := range map[string]int32{"/": 1, "/a": 1, "/b": 1} {
		v, ok := hits.Load(path)
		if !ok {
			t.Errorf("%s was never requested", path)
			continue
		}
		if n := v.(*atomic.Int32).Load(); n != want { //nolint:forcetypeassert
			t.Errorf("%s requested %d times, want %d", path, n, want)
		}
	}
	if !reflect.DeepEqual(result.Emails, []string{"b@example.org"}) {
		t.Errorf("expected [b@example.org], got %v", result.Emails)
	}
	if result.PagesFailed != 0 {
		t.Errorf("expected no failures, got %v", result.Failures)
	}
}
