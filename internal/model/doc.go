// Package model defines the data structures shared by the crawler, the
// report writers, the database, and the HTTP front end.
//
// This package contains the following main types:
//   - CrawlTask: a URL scheduled for fetching at a given depth
//   - TaskState: the lifecycle of a task (pending, fetching, expanded, failed, skipped)
//   - CrawlResult: everything a crawl session returns to its caller
//   - FetchFailure: a branch that stopped because its fetch failed
//
// The models are serializable to JSON for report output, the result cache,
// and database storage.
package model
