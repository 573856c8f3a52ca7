package report

import (
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/mailspider/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs crawl results in Markdown format for
// documentation and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the crawl result in Markdown format.
func (w *MarkdownWriter) Write(result *model.CrawlResult) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, result)
	w.writeEmails(md, result)
	w.writeFailures(md, result)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with session information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, result *model.CrawlResult) {
	md.H1("mailspider Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed URL", "`" + result.SeedURL + "`"},
			{"Scope", "`" + result.RootScope + "`"},
			{"Session", "`" + result.SessionID + "`"},
			{"Started", result.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", result.Duration().Round(time.Millisecond).String()},
			{"Pages Crawled", strconv.Itoa(result.PagesCrawled)},
			{"Pages Failed", strconv.Itoa(result.PagesFailed)},
			{"Status", w.getStatusText(result)},
		},
	})
	md.PlainText("")

	if result.TimedOut() {
		md.Warningf("The crawl ended before every branch finished. %d page(s) were crawled; results are partial.",
			result.PagesCrawled)
		md.PlainText("")
	}
}

// getStatusText returns the status text based on result state.
func (w *MarkdownWriter) getStatusText(result *model.CrawlResult) string {
	if result.TimedOut() {
		return "⚠️ Timed Out (partial results)"
	}
	return "✅ " + statusText(result)
}

// writeEmails writes the address list and a per-domain chart.
func (w *MarkdownWriter) writeEmails(md *markdown.Markdown, result *model.CrawlResult) {
	md.H2("Email Addresses")
	md.PlainText("")

	if !result.HasEmails() {
		md.Note("No email addresses were found.")
		md.PlainText("")
		return
	}

	md.BulletList(result.Emails...)
	md.PlainText("")

	domains := countDomains(result.Emails)
	if len(domains) > 1 {
		w.writePieChart(md, domains)
	}
}

// domainCount is the number of addresses seen for one domain.
type domainCount struct {
	domain string
	count  int
}

// countDomains groups addresses by the part after '@', sorted by count
// then domain name.
func countDomains(emails []string) []domainCount {
	counts := make(map[string]int)
	for _, addr := range emails {
		at := strings.LastIndexByte(addr, '@')
		if at < 0 {
			continue
		}
		counts[strings.ToLower(addr[at+1:])]++
	}

	out := make([]domainCount, 0, len(counts))
	for d, c := range counts {
		out = append(out, domainCount{domain: d, count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].domain < out[j].domain
	})
	return out
}

// writePieChart writes a mermaid pie chart of addresses per domain.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, domains []domainCount) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Addresses by Domain"),
		piechart.WithShowData(true),
	)
	for _, d := range domains {
		chart.LabelAndIntValue(d.domain, uint64(d.count))
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeFailures writes a table of failed fetches, if any.
func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, result *model.CrawlResult) {
	if len(result.Failures) == 0 {
		return
	}

	md.H2("Failed Fetches")
	md.PlainText("")

	rows := make([][]string, len(result.Failures))
	for i, f := range result.Failures {
		status := "-"
		if f.StatusCode != 0 {
			status = strconv.Itoa(f.StatusCode)
		}
		rows[i] = []string{
			truncateString(f.URL, 60),
			strconv.Itoa(f.Depth),
			status,
			truncateString(f.Error, 60),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Depth", "Status", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [mailspider](https://github.com/nao1215/mailspider)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
