package crawler

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestExtractLinksResolvesAndFilters(t *testing.T) {
	doc := mustParse(t, `<html><body>
		<a href="/a">A</a>
		<a href="b">B</a>
		<a href="http://other.test/x">other</a>
		<a href="//example.test/c">protocol relative</a>
		<a href="#top">fragment</a>
		<a href="mailto:me@example.test">mail</a>
		<a href="/a">A again</a>
		<a>no href</a>
		<a href="http://bad host/">broken</a>
	</body></html>`)

	base := mustURL(t, "http://example.test/dir/")
	links := ExtractLinks(doc, base, NewDomainScope("example.test", false))

	assert.Equal(t, []string{
		"http://example.test/a",
		"http://example.test/dir/b",
		"http://example.test/c",
		"http://example.test/dir/#top",
	}, links)
}

func TestExtractLinksStrictScope(t *testing.T) {
	doc := mustParse(t, `<a href="http://evil-example.test.com/">evil</a><a href="http://www.example.test/">www</a>`)
	base := mustURL(t, "http://example.test/")

	loose := ExtractLinks(doc, base, NewDomainScope("example.test", false))
	strict := ExtractLinks(doc, base, NewDomainScope("example.test", true))

	assert.ElementsMatch(t, []string{"http://evil-example.test.com/", "http://www.example.test/"}, loose)
	assert.Equal(t, []string{"http://www.example.test/"}, strict)
}

func TestExtractLinksNoAnchors(t *testing.T) {
	doc := mustParse(t, `<p>nothing to see</p>`)
	links := ExtractLinks(doc, mustURL(t, "http://example.test/"), NewDomainScope("example.test", false))
	assert.Empty(t, links)
	assert.Empty(t, ExtractLinks(nil, mustURL(t, "http://example.test/"), NewDomainScope("example.test", false)))
}
