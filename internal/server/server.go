package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/mailspider/internal/cache"
	"github.com/nao1215/mailspider/internal/crawler"
	"github.com/nao1215/mailspider/internal/model"
	"github.com/nao1215/mailspider/internal/scope"
)

const (
	// maxRequestBody bounds the size of a scrape request body.
	maxRequestBody = 1 << 20

	// shutdownTimeout is how long in-flight requests get to finish once
	// the server is asked to stop.
	shutdownTimeout = 10 * time.Second

	// Response headers describing the crawl behind a scrape response.
	HeaderSessionID   = "X-Mailspider-Session"
	HeaderCrawlStatus = "X-Mailspider-Status"
	HeaderCache       = "X-Mailspider-Cache"
)

// Crawler runs one crawl session. *crawler.Engine implements it.
type Crawler interface {
	Run(ctx context.Context, seedURL string, limits crawler.Limits) (*model.CrawlResult, error)
}

// ResultStore persists results and looks them up by session ID.
// *database.CrawlDB implements it.
type ResultStore interface {
	SaveResult(ctx context.Context, result *model.CrawlResult) error
	GetResult(ctx context.Context, sessionID string) (*model.CrawlResult, error)
}

// ScrapeRequest is the body of POST /scrape. Omitted limits take the
// server defaults.
type ScrapeRequest struct {
	URL                   string `json:"url"`
	Depth                 *int   `json:"depth,omitempty"`
	MaxPages              *int   `json:"max_pages,omitempty"`
	MaxConcurrentRequests *int   `json:"max_concurrent_requests,omitempty"`
}

// ScrapeResponse is the body of a successful POST /scrape.
type ScrapeResponse struct {
	Emails []string `json:"emails"`
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server answers scrape requests by running a crawl session per request.
type Server struct {
	crawler        Crawler
	cache          cache.ResultCache
	store          ResultStore
	logger         *slog.Logger
	requestTimeout time.Duration
	defaults       crawler.Limits
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCache serves repeated requests for the same seed and limits from c.
// Only completed sessions are cached.
func WithCache(c cache.ResultCache) Option {
	return func(s *Server) {
		s.cache = c
	}
}

// WithStore saves every session to store and enables GET /sessions/{id}.
func WithStore(store ResultStore) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithRequestTimeout bounds each crawl. When it expires the request is
// answered with the addresses found so far. Zero means no timeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

// WithDefaultLimits sets the limits used for fields a request omits.
func WithDefaultLimits(limits crawler.Limits) Option {
	return func(s *Server) {
		s.defaults = limits
	}
}

// DefaultLimits are the limits applied when a request omits them.
func DefaultLimits() crawler.Limits {
	return crawler.Limits{MaxDepth: 3, MaxPages: 50, MaxConcurrency: 5}
}

// New creates a Server that crawls with c.
func New(c Crawler, opts ...Option) *Server {
	s := &Server{
		crawler:  c,
		logger:   slog.Default(),
		defaults: DefaultLimits(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/scrape", s.handleScrape)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.store != nil {
		mux.HandleFunc("/sessions/", s.handleSession)
	}
	return mux
}

// ListenAndServe serves the API on addr until ctx ends, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleScrape crawls the requested site and returns the addresses found.
//
// Method: POST
// Path:   /scrape
// Example:
//
//	curl -X POST -d '{"url": "example.com", "depth": 2}' http://localhost:6662/scrape
func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := decodeScrapeRequest(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	seed, err := scope.NormalizeSeed(req.URL)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limits := s.limitsFor(req)
	if err := limits.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logger := s.logger.With("seed", seed)
	key := cache.Key(seed, limits.MaxDepth, limits.MaxPages, limits.MaxConcurrency)

	if s.cache != nil {
		cached, ok, err := s.cache.Get(r.Context(), key)
		if err != nil {
			logger.Warn("cache lookup failed", "error", err)
		} else if ok {
			logger.Debug("cache hit", "session", cached.SessionID)
			w.Header().Set(HeaderCache, "hit")
			s.writeResult(w, cached)
			return
		}
	}

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	result, err := s.crawler.Run(ctx, seed, limits)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The crawl may have been cut short by the request timeout, but the
	// result must still be recorded.
	saveCtx := context.WithoutCancel(r.Context())
	if s.cache != nil && result.Status == model.StatusCompleted {
		if err := s.cache.Set(saveCtx, key, result); err != nil {
			logger.Warn("cache store failed", "error", err)
		}
		w.Header().Set(HeaderCache, "miss")
	}
	if s.store != nil {
		if err := s.store.SaveResult(saveCtx, result); err != nil {
			logger.Error("failed to save session", "session", result.SessionID, "error", err)
		}
	}

	s.writeResult(w, result)
}

// handleHealth reports that the server is up.
//
// Method: GET
// Path:   /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// handleSession returns a stored session result.
//
// Method: GET
// Path:   /sessions/{sessionID}
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/sessions/"), "/")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	result, err := s.store.GetResult(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load session", "session", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if result == nil {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	s.writeJSON(w, result, http.StatusOK)
}

// limitsFor fills the limits a request omitted with the server defaults.
func (s *Server) limitsFor(req *ScrapeRequest) crawler.Limits {
	limits := s.defaults
	if req.Depth != nil {
		limits.MaxDepth = *req.Depth
	}
	if req.MaxPages != nil {
		limits.MaxPages = *req.MaxPages
	}
	if req.MaxConcurrentRequests != nil {
		limits.MaxConcurrency = *req.MaxConcurrentRequests
	}
	return limits
}

func decodeScrapeRequest(body io.Reader) (*ScrapeRequest, error) {
	var req ScrapeRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	if strings.TrimSpace(req.URL) == "" {
		return nil, ErrMissingURL
	}
	return &req, nil
}

func (s *Server) writeResult(w http.ResponseWriter, result *model.CrawlResult) {
	emails := result.Emails
	if emails == nil {
		emails = []string{}
	}
	w.Header().Set(HeaderSessionID, result.SessionID)
	w.Header().Set(HeaderCrawlStatus, string(result.Status))
	s.writeJSON(w, ScrapeResponse{Emails: emails}, http.StatusOK)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, ErrorResponse{Error: msg}, status)
}

// writeJSON sends payload with status. The status line is already sent when
// encoding fails, so an encode error is only logged.
func (s *Server) writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", "status", status, "error", err)
	}
}
