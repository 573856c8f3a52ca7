package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/nao1215/mailspider/internal/model"
	"github.com/nao1215/mailspider/internal/report"
)

// ResultSaver persists crawl results. *database.CrawlDB implements it.
type ResultSaver interface {
	SaveResult(ctx context.Context, result *model.CrawlResult) error
}

// HistoryStep stores each result in the crawl history database.
type HistoryStep struct {
	saver ResultSaver
}

// NewHistoryStep creates a HistoryStep that saves through saver.
func NewHistoryStep(saver ResultSaver) *HistoryStep {
	return &HistoryStep{saver: saver}
}

// Name returns the step name.
func (s *HistoryStep) Name() string {
	return "history"
}

// Do saves the result.
func (s *HistoryStep) Do(ctx context.Context, result *model.CrawlResult) error {
	if err := s.saver.SaveResult(ctx, result); err != nil {
		return fmt.Errorf("failed to save crawl history: %w", err)
	}
	return nil
}

// LineFilesStep writes urls.txt and emails.txt for each result.
type LineFilesStep struct {
	dir      string
	perScope bool
}

// LineFilesStepOption configures a LineFilesStep.
type LineFilesStepOption func(*LineFilesStep)

// WithPerScopeDir writes each result into a subdirectory named after its
// host, so results of several seeds do not overwrite each other.
func WithPerScopeDir(perScope bool) LineFilesStepOption {
	return func(s *LineFilesStep) {
		s.perScope = perScope
	}
}

// NewLineFilesStep creates a LineFilesStep that writes under dir.
func NewLineFilesStep(dir string, opts ...LineFilesStepOption) *LineFilesStep {
	s := &LineFilesStep{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *LineFilesStep) Name() string {
	return "line-files"
}

// Do writes the files.
func (s *LineFilesStep) Do(_ context.Context, result *model.CrawlResult) error {
	return report.WriteLineFiles(s.Dir(result), result)
}

// Dir returns the directory the files for result are written to.
func (s *LineFilesStep) Dir(result *model.CrawlResult) string {
	if !s.perScope {
		return s.dir
	}
	return filepath.Join(s.dir, scopeDirName(result.RootScope))
}

// scopeDirName turns a host (possibly with a port) into a safe directory name.
func scopeDirName(scope string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, scope)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}

// ReportStep renders each result with a report.Writer. Writes are
// serialized so concurrent batch sessions do not interleave output.
type ReportStep struct {
	writer report.Writer
	mu     *sync.Mutex
}

// NewReportStep creates a ReportStep. Steps created by the same factory
// should share mu when they write to the same destination; a nil mu gets
// a private lock.
func NewReportStep(writer report.Writer, mu *sync.Mutex) *ReportStep {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &ReportStep{writer: writer, mu: mu}
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Do writes the report.
func (s *ReportStep) Do(_ context.Context, result *model.CrawlResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(result); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
