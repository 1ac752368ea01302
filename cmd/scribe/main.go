// Package main provides the entry point for the site-scribe CLI.
//
// Usage:
//
//	scribe crawl https://example.com/
//	scribe serve --addr :5000
//
// See --help for all available options.
package main

func main() {
	Execute()
}
