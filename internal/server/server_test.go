package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/mailspider/internal/crawler"
	"github.com/nao1215/mailspider/internal/model"
)

// fakeCrawler records calls and returns a fixed set of addresses.
type fakeCrawler struct {
	mu     sync.Mutex
	seeds  []string
	limits []crawler.Limits
	calls  atomic.Int32
	emails []string
	block  bool
}

func (f *fakeCrawler) Run(ctx context.Context, seedURL string, limits crawler.Limits) (*model.CrawlResult, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.seeds = append(f.seeds, seedURL)
	f.limits = append(f.limits, limits)
	f.mu.Unlock()

	status := model.StatusCompleted
	if f.block {
		<-ctx.Done()
		status = model.StatusTimedOut
	}
	return &model.CrawlResult{
		SessionID: fmt.Sprintf("session-%d", n),
		SeedURL:   seedURL,
		Emails:    f.emails,
		Status:    status,
	}, nil
}

func (f *fakeCrawler) lastLimits() crawler.Limits {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.limits[len(f.limits)-1]
}

func (f *fakeCrawler) lastSeed() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seeds[len(f.seeds)-1]
}

// memoryCache is an in-process ResultCache.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*model.CrawlResult
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*model.CrawlResult)}
}

func (c *memoryCache) Get(_ context.Context, key string) (*model.CrawlResult, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return r, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, result *model.CrawlResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = result
	return nil
}

func (c *memoryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// memoryStore is an in-process ResultStore.
type memoryStore struct {
	mu      sync.Mutex
	results map[string]*model.CrawlResult
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{results: make(map[string]*model.CrawlResult)}
}

func (s *memoryStore) SaveResult(_ context.Context, result *model.CrawlResult) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.SessionID] = result
	return nil
}

func (s *memoryStore) GetResult(_ context.Context, id string) (*model.CrawlResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[id], nil
}

func postScrape(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/scrape", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEmails(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()

	var payload ScrapeResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return payload.Emails
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var payload ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	return payload.Error
}

func TestHandleScrape(t *testing.T) {
	t.Parallel()

	t.Run("returns emails with default limits", func(t *testing.T) {
		t.Parallel()

		fc := &fakeCrawler{emails: []string{"a@example.com", "b@example.com"}}
		h := New(fc).Handler()

		rec := postScrape(t, h, `{"url": "https://example.com"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		if got := decodeEmails(t, rec); !reflect.DeepEqual(got, fc.emails) {
			t.Errorf("expected %v, got %v", fc.emails, got)
		}
		if got := fc.lastLimits(); got != DefaultLimits() {
			t.Errorf("expected default limits, got %+v", got)
		}
		if fc.lastSeed() != "https://example.com/" {
			t.Errorf("unexpected seed %q", fc.lastSeed())
		}
		if rec.Header().Get(HeaderCrawlStatus) != string(model.StatusCompleted) {
			t.Errorf("unexpected status header %q", rec.Header().Get(HeaderCrawlStatus))
		}
		if rec.Header().Get(HeaderSessionID) == "" {
			t.Error("expected session header")
		}
	})

	t.Run("explicit limits override defaults", func(t *testing.T) {
		t.Parallel()

		fc := &fakeCrawler{}
		h := New(fc).Handler()

		rec := postScrape(t, h, `{"url": "https://example.com", "depth": 0, "max_pages": 7, "max_concurrent_requests": 2}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		want := crawler.Limits{MaxDepth: 0, MaxPages: 7, MaxConcurrency: 2}
		if got := fc.lastLimits(); got != want {
			t.Errorf("expected %+v, got %+v", want, got)
		}
	})

	t.Run("normalizes bare domain", func(t *testing.T) {
		t.Parallel()

		fc := &fakeCrawler{}
		h := New(fc).Handler()

		rec := postScrape(t, h, `{"url": "example.com"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if fc.lastSeed() != "http://www.example.com/" {
			t.Errorf("unexpected seed %q", fc.lastSeed())
		}
	})

	t.Run("empty result encodes as empty array", func(t *testing.T) {
		t.Parallel()

		h := New(&fakeCrawler{}).Handler()
		rec := postScrape(t, h, `{"url": "https://example.com"}`)

		if strings.TrimSpace(rec.Body.String()) != `{"emails":[]}` {
			t.Errorf("unexpected body %q", rec.Body.String())
		}
	})

	t.Run("custom default limits", func(t *testing.T) {
		t.Parallel()

		fc := &fakeCrawler{}
		defaults := crawler.Limits{MaxDepth: 1, MaxPages: 2, MaxConcurrency: 3}
		h := New(fc, WithDefaultLimits(defaults)).Handler()

		postScrape(t, h, `{"url": "https://example.com"}`)

		if got := fc.lastLimits(); got != defaults {
			t.Errorf("expected %+v, got %+v", defaults, got)
		}
	})
}

func TestHandleScrapeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		method  string
		body    string
		status  int
		message string
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed, "method not allowed"},
		{"invalid json", http.MethodPost, `{"url":`, http.StatusBadRequest, "invalid json body"},
		{"not an object", http.MethodPost, `["https://example.com"]`, http.StatusBadRequest, "invalid json body"},
		{"missing url", http.MethodPost, `{"depth": 2}`, http.StatusBadRequest, "missing url"},
		{"blank url", http.MethodPost, `{"url": "   "}`, http.StatusBadRequest, "missing url"},
		{"unsupported scheme", http.MethodPost, `{"url": "ftp://example.com"}`, http.StatusBadRequest, "invalid seed url"},
		{"negative depth", http.MethodPost, `{"url": "https://example.com", "depth": -1}`, http.StatusBadRequest, "invalid crawl limits"},
		{"zero pages", http.MethodPost, `{"url": "https://example.com", "max_pages": 0}`, http.StatusBadRequest, "invalid crawl limits"},
		{"zero concurrency", http.MethodPost, `{"url": "https://example.com", "max_concurrent_requests": 0}`, http.StatusBadRequest, "invalid crawl limits"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fc := &fakeCrawler{}
			h := New(fc).Handler()

			req := httptest.NewRequest(tt.method, "/scrape", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
			if msg := decodeError(t, rec); !strings.Contains(msg, tt.message) {
				t.Errorf("expected error containing %q, got %q", tt.message, msg)
			}
			if fc.calls.Load() != 0 {
				t.Error("crawler should not have been called")
			}
		})
	}
}

func TestHandleScrapeAllowHeader(t *testing.T) {
	t.Parallel()

	h := New(&fakeCrawler{}).Handler()
	req := httptest.NewRequest(http.MethodPut, "/scrape", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Allow") != http.MethodPost {
		t.Errorf("expected Allow: POST, got %q", rec.Header().Get("Allow"))
	}
}

func TestHandleScrapeRequestTimeout(t *testing.T) {
	t.Parallel()

	fc := &fakeCrawler{block: true, emails: []string{"partial@example.com"}}
	c := newMemoryCache()
	h := New(fc, WithRequestTimeout(50*time.Millisecond), WithCache(c)).Handler()

	start := time.Now()
	rec := postScrape(t, h, `{"url": "https://example.com"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("request took %v", elapsed)
	}
	if got := decodeEmails(t, rec); len(got) != 1 {
		t.Errorf("expected partial emails, got %v", got)
	}
	if rec.Header().Get(HeaderCrawlStatus) != string(model.StatusTimedOut) {
		t.Errorf("expected timed_out status header, got %q", rec.Header().Get(HeaderCrawlStatus))
	}
	if c.len() != 0 {
		t.Error("timed out results must not be cached")
	}
}

func TestHandleScrapeCache(t *testing.T) {
	t.Parallel()

	t.Run("second request is served from cache", func(t *testing.T) {
		t.Parallel()

		fc := &fakeCrawler{emails: []string{"a@example.com"}}
		c := newMemoryCache()
		h := New(fc, WithCache(c)).Handler()

		first := postScrape(t, h, `{"url": "https://example.com"}`)
		second := postScrape(t, h, `{"url": "https://example.com/"}`)

		if fc.calls.Load() != 1 {
			t.Errorf("expected 1 crawl, got %d", fc.calls.Load())
		}
		if first.Header().Get(HeaderCache) != "miss" || second.Header().Get(HeaderCache) != "hit" {
			t.Errorf("unexpected cache headers %q, %q",
				first.Header().Get(HeaderCache), second.Header().Get(HeaderCache))
		}
		if got := decodeEmails(t, second); !reflect.DeepEqual(got, fc.emails) {
			t.Errorf("expected cached emails, got %v", got)
		}
	})

	t.Run("different limits miss", func(t *testing.T) {
		t.Parallel()

		fc := &fakeCrawler{}
		h := New(fc, WithCache(newMemoryCache())).Handler()

		postScrape(t, h, `{"url": "https://example.com", "depth": 1}`)
		postScrape(t, h, `{"url": "https://example.com", "depth": 2}`)

		if fc.calls.Load() != 2 {
			t.Errorf("expected 2 crawls, got %d", fc.calls.Load())
		}
	})

	t.Run("cache errors fall back to crawling", func(t *testing.T) {
		t.Parallel()

		fc := &fakeCrawler{emails: []string{"a@example.com"}}
		c := newMemoryCache()
		c.getErr = errors.New("connection refused")
		h := New(fc, WithCache(c)).Handler()

		rec := postScrape(t, h, `{"url": "https://example.com"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if fc.calls.Load() != 1 {
			t.Errorf("expected crawl, got %d calls", fc.calls.Load())
		}
	})
}

func TestSessions(t *testing.T) {
	t.Parallel()

	t.Run("stored session can be fetched", func(t *testing.T) {
		t.Parallel()

		store := newMemoryStore()
		h := New(&fakeCrawler{emails: []string{"a@example.com"}}, WithStore(store)).Handler()

		rec := postScrape(t, h, `{"url": "https://example.com"}`)
		id := rec.Header().Get(HeaderSessionID)

		req := httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil)
		got := httptest.NewRecorder()
		h.ServeHTTP(got, req)

		if got.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, got.Code)
		}
		var result model.CrawlResult
		if err := json.NewDecoder(got.Body).Decode(&result); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if result.SessionID != id || len(result.Emails) != 1 {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()

		h := New(&fakeCrawler{}, WithStore(newMemoryStore())).Handler()
		req := httptest.NewRequest(http.MethodGet, "/sessions/nope", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		t.Parallel()

		h := New(&fakeCrawler{}, WithStore(newMemoryStore())).Handler()
		req := httptest.NewRequest(http.MethodGet, "/sessions/", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("not routed without a store", func(t *testing.T) {
		t.Parallel()

		h := New(&fakeCrawler{}).Handler()
		req := httptest.NewRequest(http.MethodGet, "/sessions/abc", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("save errors do not fail the request", func(t *testing.T) {
		t.Parallel()

		store := newMemoryStore()
		store.saveErr = errors.New("disk full")
		h := New(&fakeCrawler{}, WithStore(store)).Handler()

		rec := postScrape(t, h, `{"url": "https://example.com"}`)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	h := New(&fakeCrawler{}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

// TestScrapeEndToEnd runs the real crawl engine against a local site.
func TestScrapeEndToEnd(t *testing.T) {
	t.Parallel()

	site := http.NewServeMux()
	site.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<a href="/contact">Contact</a> info@example.net`)) //nolint:errcheck
		case "/contact":
			_, _ = w.Write([]byte(`<a href="mailto:help@example.net">Help</a>`)) //nolint:errcheck
		default:
			http.NotFound(w, r)
		}
	})
	target := httptest.NewServer(site)
	defer target.Close()

	engine := crawler.NewEngine(crawler.WithFetcher(
		crawler.NewHTTPFetcher(crawler.WithHTTPClient(target.Client())),
	))
	api := httptest.NewServer(New(engine).Handler())
	defer api.Close()

	body := `{"url": "` + target.URL + `", "depth": 2, "max_pages": 10, "max_concurrent_requests": 2}`
	resp, err := api.Client().Post(api.URL+"/scrape", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var payload ScrapeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	want := []string{"help@example.net", "info@example.net"}
	if !reflect.DeepEqual(payload.Emails, want) {
		t.Errorf("expected %v, got %v", want, payload.Emails)
	}
}

func TestListenAndServeShutdown(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	srv := New(&fakeCrawler{})

	done := make(chan error, 1)
	go func() {
		done <- srv.ListenAndServe(ctx, "127.0.0.1:0")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestWriteJSONEncodeFailure(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	srv := New(&fakeCrawler{}, WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))

	rec := httptest.NewRecorder()
	srv.writeJSON(rec, map[string]any{"bad": make(chan int)}, http.StatusCreated)

	if rec.Code != http.StatusCreated {
		t.Errorf("expected the original status %d, got %d", http.StatusCreated, rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected no body after a failed encode, got %q", rec.Body.String())
	}
	if !strings.Contains(logs.String(), "failed to encode response") {
		t.Errorf("expected the encode error to be logged, got %q", logs.String())
	}
}
