// Package main provides the entry point for the mailspider CLI.
//
// mailspider crawls a website within its own host and collects the email
// addresses published on its pages.
//
// Usage:
//
//	mailspider crawl <url>
//	mailspider crawl --batch 2 <url> <url>
//	mailspider serve --listen :6662
//
// See --help for all available options.
package main

func main() {
	Execute()
}
