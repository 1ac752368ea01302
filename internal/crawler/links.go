package crawler

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// ExtractLinks resolves every anchor href in doc against base and returns the
// unique in-scope absolute URLs in document order
func ExtractLinks(doc *goquery.Document, base *url.URL, scope DomainScope) []string {
	if doc == nil || base == nil {
		return nil
	}

	seen := make(map[string]bool)
	var links []string

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")

		link, ok := Resolve(base, href)
		if !ok {
			return
		}
		if !IsValidURL(link) || !scope.Contains(link) {
			return
		}
		if seen[link] {
			return
		}

		seen[link] = true
		links = append(links, link)
	})

	return links
}
