// Package server exposes the crawler over HTTP.
//
// POST /scrape takes a JSON body {"url", "depth", "max_pages",
// "max_concurrent_requests"}, runs one crawl session and answers with
// {"emails": [...]}. GET /healthz reports liveness, and GET /sessions/{id}
// returns a stored session when a ResultStore is configured.
package server
