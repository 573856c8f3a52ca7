// Package database provides SQLite-based storage for crawl history.
//
// CrawlDB stores:
//   - one row per crawl session with its counters and full JSON result
//   - the addresses found by each session
//   - the URLs claimed by each session
//
// The driver is modernc.org/sqlite, a CGO-free implementation, so the
// database is a single file under the XDG data directory.
package database
