package crawler

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/mailspider/internal/scope"
)

// LinkExtractor lists the links of a fetched page.
// The returned strings are absolute URLs where the extractor can resolve
// them. The engine resolves every entry against the page URL again, so
// relative results are also accepted.
type LinkExtractor interface {
	ExtractLinks(body, baseURL string) ([]string, error)
}

// HTMLLinkExtractor walks an HTML document with golang.org/x/net/html and
// collects the href attributes of <a> and <area> elements.
// A <base href> element, when present, replaces the page URL as the base
// for relative links.
type HTMLLinkExtractor struct{}

// NewHTMLLinkExtractor creates an HTMLLinkExtractor.
func NewHTMLLinkExtractor() *HTMLLinkExtractor {
	return &HTMLLinkExtractor{}
}

// ExtractLinks parses body and returns the resolved links in document order.
// Duplicates are kept; the visited set takes care of them.
func (p *HTMLLinkExtractor) ExtractLinks(body, baseURL string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return nil, err
	}

	var hrefs []string
	baseSet := false

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "base":
				// Only the first <base> counts.
				if !baseSet {
					if href := getAttr(n, "href"); href != "" {
						if u, err := scope.Resolve(base, href); err == nil {
							base = u
							baseSet = true
						}
					}
				}
			case "a", "area":
				if href := getAttr(n, "href"); href != "" {
					hrefs = append(hrefs, href)
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	links := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		if resolved := resolveLink(base, href); resolved != "" {
			links = append(links, resolved)
		}
	}
	return links, nil
}

// resolveLink resolves href against base, or returns "" for references that
// can never point at a crawlable page.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return ""
	}

	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") {
		return ""
	}

	u, err := scope.Resolve(base, href)
	if err != nil {
		return ""
	}
	return u.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
