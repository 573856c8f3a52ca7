// Package scope decides which URLs belong to a crawl session.
//
// A session is scoped to the host of its seed URL. Links discovered on a page
// are resolved against the page URL with Resolve and kept only when
// IsInScope reports that their host equals the root scope exactly. There is
// no subdomain matching: "blog.example.com" is out of scope for a session
// seeded at "example.com".
//
// NormalizeSeed turns user input such as "example.com" into an absolute
// seed URL the same way the HTTP front end and the CLI do.
package scope
