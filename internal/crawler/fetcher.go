package crawler

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// Page is the raw result of a successful fetch
type Page struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	// Truncated is set when Body was cut at the fetcher's size limit
	Truncated bool
}

// Fetcher retrieves a single URL. Every failure is reported as *FetchError
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// FetchError is the single failure kind surfaced by a Fetcher: transport
// errors, timeouts and non-success statuses alike
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// CollyFetcher fetches pages with a colly collector
type CollyFetcher struct {
	base        *colly.Collector
	maxBodySize int
}

// NewCollyFetcher creates a fetcher bounded by timeout per request. Bodies
// longer than maxBodySize bytes are cut and flagged (0 = unlimited)
func NewCollyFetcher(userAgent string, timeout time.Duration, maxBodySize int) *CollyFetcher {
	base := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.MaxDepth(0), // traversal is driven by the frontier
		colly.MaxBodySize(maxBodySize),
	)
	// Dedup is owned by the crawler's visited set
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = true
	// Hand every status to OnResponse; success is decided in Fetch
	base.ParseHTTPErrorResponse = true
	base.SetRequestTimeout(timeout)

	return &CollyFetcher{base: base, maxBodySize: maxBodySize}
}

// Fetch downloads rawURL, following redirects
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	collector := f.base.Clone()

	var (
		once   sync.Once
		result fetchResult
	)
	set := func(res fetchResult) {
		once.Do(func() { result = res })
	}

	collector.OnResponse(func(r *colly.Response) {
		page := &Page{
			URL:        rawURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
		if r.Headers != nil {
			page.ContentType = decodedContentType(r.Headers.Get("Content-Type"))
		}
		if f.maxBodySize > 0 && len(r.Body) >= f.maxBodySize {
			page.Truncated = true
			logrus.Warnf("Body of %s truncated at %d bytes", rawURL, f.maxBodySize)
		}
		set(fetchResult{page: page})
	})

	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		set(fetchResult{err: &FetchError{URL: rawURL, StatusCode: status, Err: err}})
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, &FetchError{URL: rawURL, Err: ctx.Err()}
	case err := <-done:
		if result.err != nil {
			return nil, result.err
		}
		if err != nil {
			return nil, &FetchError{URL: rawURL, Err: err}
		}
		if result.page == nil {
			return nil, &FetchError{URL: rawURL, Err: errors.New("no response")}
		}
		if result.page.StatusCode < http.StatusOK || result.page.StatusCode >= http.StatusMultipleChoices {
			return nil, &FetchError{URL: rawURL, StatusCode: result.page.StatusCode, Err: errors.New(http.StatusText(result.page.StatusCode))}
		}
		return result.page, nil
	}
}

// decodedContentType describes the body colly hands over. colly transcodes
// bodies whose Content-Type names a charset to UTF-8, so the charset is
// rewritten to match. Without a charset the body is raw and left for
// ParseDocument to sniff
func decodedContentType(contentType string) string {
	if !strings.Contains(strings.ToLower(contentType), "charset") {
		return contentType
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "text/html; charset=utf-8"
	}
	params["charset"] = "utf-8"
	return mime.FormatMediaType(mediaType, params)
}

type fetchResult struct {
	page *Page
	err  error
}
