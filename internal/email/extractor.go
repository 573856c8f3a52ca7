package email

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Pattern is the regular expression used to find address-shaped tokens.
const Pattern = `[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`

// DefaultAssetExtensions lists file suffixes whose matches are treated as
// file names rather than addresses.
var DefaultAssetExtensions = []string{
	// images
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".bmp", ".webp", ".ico",
	// documents
	".pdf",
	// video and audio
	".mp4", ".avi", ".mov", ".wmv", ".mp3", ".wav",
	// archives
	".zip", ".rar", ".tar", ".gz",
	// markup, script and style
	".js", ".css", ".html",
}

// Extractor finds email addresses in text.
// An Extractor holds no mutable state and is safe for concurrent use.
type Extractor struct {
	pattern    *regexp.Regexp
	extensions []string
	foldCase   bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithAssetExtensions replaces the list of discarded file suffixes.
func WithAssetExtensions(exts []string) Option {
	return func(e *Extractor) {
		e.extensions = normalizeExtensions(exts)
	}
}

// WithCaseInsensitiveAssets makes the asset suffix check ignore case, so
// "icon@2x.PNG" is discarded as well. Off by default.
func WithCaseInsensitiveAssets(enabled bool) Option {
	return func(e *Extractor) {
		e.foldCase = enabled
	}
}

// NewExtractor creates an Extractor with the default asset extension list.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		pattern:    regexp.MustCompile(Pattern),
		extensions: normalizeExtensions(DefaultAssetExtensions),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns every address-shaped token in text that does not end in an
// asset extension. Results are deduplicated by exact string equality and
// returned in order of first appearance. Case is preserved.
func (e *Extractor) Extract(text string) []string {
	matches := e.pattern.FindAllString(text, -1)

	seen := make(map[string]struct{}, len(matches))
	found := make([]string, 0, len(matches))
	for _, m := range matches {
		if e.IsAssetName(m) {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		found = append(found, m)
	}
	return found
}

// ExtractMailto returns the addresses of mailto: links in an HTML document.
// Percent-encoded addresses ("mailto:info%40example.com") are decoded and
// query strings ("?subject=...") are dropped. Each decoded value must still
// match Pattern in full and pass the asset filter.
func (e *Extractor) ExtractMailto(html string) []string {
	if !strings.Contains(strings.ToLower(html), "mailto:") {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var found []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if len(href) < len("mailto:") || !strings.EqualFold(href[:len("mailto:")], "mailto:") {
			return
		}

		target := href[len("mailto:"):]
		if idx := strings.Index(target, "?"); idx != -1 {
			target = target[:idx]
		}
		if decoded, err := url.PathUnescape(target); err == nil {
			target = decoded
		}

		// A single link may carry several comma separated recipients.
		for _, addr := range strings.Split(target, ",") {
			addr = strings.TrimSpace(addr)
			if !e.isWholeMatch(addr) || e.IsAssetName(addr) {
				continue
			}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			found = append(found, addr)
		}
	})
	return found
}

// IsAssetName reports whether token ends with one of the asset extensions.
// The comparison is case-sensitive unless WithCaseInsensitiveAssets is set.
func (e *Extractor) IsAssetName(token string) bool {
	if e.foldCase {
		token = strings.ToLower(token)
	}
	for _, ext := range e.extensions {
		if strings.HasSuffix(token, ext) {
			return true
		}
	}
	return false
}

func (e *Extractor) isWholeMatch(s string) bool {
	if s == "" {
		return false
	}
	loc := e.pattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
