package crawler

import (
	"context"

	"github.com/gocolly/colly/v2"
)

// CollyFetcher fetches pages through a colly collector.
// Each call works on a clone of a base collector, so callbacks never leak
// between concurrent fetches. Revisits are allowed because deduplication
// belongs to the session, not to the collector.
type CollyFetcher struct {
	base    *colly.Collector
	headers map[string]string
	cookie  string
}

// NewCollyFetcher creates a CollyFetcher. It accepts the same options as
// NewHTTPFetcher; WithHTTPClient is ignored.
func NewCollyFetcher(opts ...HTTPFetcherOption) *CollyFetcher {
	cfg := NewHTTPFetcher(opts...)

	c := colly.NewCollector(
		colly.UserAgent(cfg.userAgent),
		colly.MaxBodySize(int(cfg.maxBodySize)),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.SetRequestTimeout(cfg.client.Timeout)

	return &CollyFetcher{
		base:    c,
		headers: cfg.headers,
		cookie:  cfg.cookie,
	}
}

// Fetch visits pageURL once and returns the page.
func (f *CollyFetcher) Fetch(ctx context.Context, pageURL string) (*Response, error) {
	c := f.base.Clone()
	c.Context = ctx

	var (
		resp     *Response
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		for k, v := range f.headers {
			r.Headers.Set(k, v)
		}
		if f.cookie != "" {
			r.Headers.Set("Cookie", f.cookie)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		resp = &Response{
			URL:         pageURL,
			FinalURL:    r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        r.Body,
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && (r.StatusCode < 200 || r.StatusCode > 299) {
			fetchErr = &FetchError{URL: pageURL, StatusCode: r.StatusCode, Err: ErrUnexpectedStatus}
			return
		}
		fetchErr = &FetchError{URL: pageURL, Err: err}
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = &FetchError{URL: pageURL, Err: err}
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if resp == nil {
		return nil, &FetchError{URL: pageURL, Err: ErrNoResponse}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: pageURL, StatusCode: resp.StatusCode, Err: ErrUnexpectedStatus}
	}
	return resp, nil
}
