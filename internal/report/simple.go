package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/mailspider/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs human-readable text reports for terminal display.
// Sections are separated with ASCII rules so the output can be piped to
// files or other tools unchanged.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose adds the crawled URL list and failure details.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the crawl result in human-readable format.
func (w *SimpleWriter) Write(result *model.CrawlResult) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, result)
	w.writeEmails(&sb, result)
	w.writeURLs(&sb, result)
	w.writeFailures(&sb, result)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// writeHeader writes the report header with session information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, result *model.CrawlResult) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                         MAILSPIDER REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Seed URL:       %s\n", result.SeedURL)
	fmt.Fprintf(sb, "Scope:          %s\n", result.RootScope)
	fmt.Fprintf(sb, "Session:        %s\n", result.SessionID)
	fmt.Fprintf(sb, "Started:        %s\n", result.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Duration:       %s\n", result.Duration().Round(time.Millisecond))
	fmt.Fprintf(sb, "Limits:         depth %d, pages %d, concurrency %d\n",
		result.MaxDepth, result.MaxPages, result.MaxConcurrency)
	fmt.Fprintf(sb, "Pages Crawled:  %d (%d failed)\n", result.PagesCrawled, result.PagesFailed)
	fmt.Fprintf(sb, "Status:         %s\n", statusText(result))
	sb.WriteString("\n")
}

// statusText returns the status line shared by the text writers.
func statusText(result *model.CrawlResult) string {
	switch result.Status {
	case model.StatusTimedOut:
		return "TIMED OUT (partial results)"
	case model.StatusInProgress:
		return "In progress"
	default:
		return "Complete"
	}
}

func (w *SimpleWriter) writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

// writeEmails writes the found addresses. This section is always shown.
func (w *SimpleWriter) writeEmails(sb *strings.Builder, result *model.CrawlResult) {
	w.writeSection(sb, fmt.Sprintf("EMAILS (%d)", len(result.Emails)))

	if !result.HasEmails() {
		sb.WriteString("  No email addresses found\n\n")
		return
	}
	for _, addr := range result.Emails {
		fmt.Fprintf(sb, "  [+] %s\n", addr)
	}
	sb.WriteString("\n")
}

// writeURLs writes the claimed URLs in verbose mode.
func (w *SimpleWriter) writeURLs(sb *strings.Builder, result *model.CrawlResult) {
	if !w.verbose {
		return
	}
	if len(result.URLs) == 0 && !w.showEmpty {
		return
	}

	w.writeSection(sb, fmt.Sprintf("URLS (%d)", len(result.URLs)))
	if len(result.URLs) == 0 {
		sb.WriteString("  No URLs discovered\n\n")
		return
	}
	for _, u := range result.URLs {
		fmt.Fprintf(sb, "  * %s\n", u)
	}
	sb.WriteString("\n")
}

// writeFailures writes failed fetches.
func (w *SimpleWriter) writeFailures(sb *strings.Builder, result *model.CrawlResult) {
	if len(result.Failures) == 0 && !w.showEmpty {
		return
	}

	w.writeSection(sb, "FAILED FETCHES")
	if len(result.Failures) == 0 {
		sb.WriteString("  No failures\n\n")
		return
	}
	for _, f := range result.Failures {
		fmt.Fprintf(sb, "  [!] %s (depth %d)\n", f.URL, f.Depth)
		if w.verbose {
			fmt.Fprintf(sb, "      Error: %s\n", f.Error)
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("Report generated by mailspider\n")
	sb.WriteString("https://github.com/nao1215/mailspider\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
}
