// Package pipeline runs crawl sessions in batches and post-processes their
// results.
//
// BatchProcessor crawls several seeds concurrently with errgroup, bounding
// the number of sessions in flight. Each finished result is passed through
// a Pipeline of Steps, such as writing the report, saving the session to the
// history database, or writing urls.txt and emails.txt.
package pipeline
