// Package report renders crawl results.
//
// Writers for the supported output formats:
//   - SimpleWriter: human-readable text for terminal display
//   - JSONWriter and FullJSONWriter: JSON for tool integration
//   - MarkdownWriter: Markdown for documentation and sharing
//
// All writers implement the Writer interface and can be combined with
// MultiWriter. WriteLineFiles persists the URL and email lists as plain
// line-oriented text files.
package report
