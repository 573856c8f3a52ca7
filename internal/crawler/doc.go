// Package crawler implements the bounded concurrent crawl engine.
//
// # Architecture
//
// A crawl starts from a single seed URL and fans out over the links found
// on each page. Every URL becomes a model.CrawlTask that moves through the
// states Pending, Fetching and then one of Expanded, Failed or Skipped.
//
// The traversal is a tree of joins rooted at the seed task. Each task that
// expands spawns its children into an errgroup.Group and waits for all of
// them, so Engine.Run returns exactly when the whole tree has terminated.
// A single semaphore shared by the whole session caps the number of fetches
// in flight. The permit is held only for the duration of a fetch, never
// while a parent waits on its children.
//
// # Components
//
//   - Engine: runs sessions and owns the fetch, extract and expand steps
//   - Session: the mutable state of one crawl (visited set, budget, emails)
//   - VisitedSet: exactly-once URL claims
//   - Budget: depth and page limits with an atomic page counter
//   - Fetcher: retrieves a page (HTTPFetcher, CollyFetcher)
//   - LinkExtractor: lists the links of a page (HTMLLinkExtractor)
//
// # Guarantees
//
// No URL is fetched twice in a session, no more than MaxPages fetches are
// ever admitted, and no task deeper than MaxDepth is fetched. A failed fetch
// ends only its own branch.
//
// # Usage
//
//	result, err := crawler.RunCrawl(ctx, "http://www.example.com/", 3, 50, 5)
//	if err != nil {
//		return err
//	}
//	fmt.Println(result.Emails)
package crawler
