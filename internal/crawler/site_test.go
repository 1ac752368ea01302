package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alvmarrod/site-scribe/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textFileOpener(path string) SinkOpener {
	return func(context.Context, storage.Run) (Sink, error) {
		tf, err := storage.OpenTextFile(path)
		if err != nil {
			return nil, err
		}
		return tf, nil
	}
}

func TestCrawlLocalSiteToTextFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `<html><head><title>Home</title><style>p{}</style></head>
<body><h1>Welcome</h1><a href="/about">About</a> <a href="contact">Contact</a>
<a href="http://other.test/">Elsewhere</a><a href="mailto:me@example.test">Mail</a></body></html>`)
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>About us</p><a href="/">Home</a><a href="/missing">Gone</a></body></html>`)
	})
	mux.HandleFunc("/contact", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/about", http.StatusMovedPermanently)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "scraped_content.txt")
	cfg := testConfig()
	cfg.OutputPath = out

	c := NewCrawler(cfg, NewCollyFetcher("scribe-test/1.0", time.Second, 0), textFileOpener(out), nil)
	res, err := c.Run(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	frames, err := storage.ParseFrames(f)
	require.NoError(t, err)

	var urls []string
	for _, fr := range frames {
		urls = append(urls, fr.URL)
	}
	// /contact redirects to /about and is recorded under its requested URL
	assert.Equal(t, []string{srv.URL + "/", srv.URL + "/about", srv.URL + "/contact"}, urls)
	assert.Equal(t, "Home\nWelcome\nAbout\nContact\nElsewhere\nMail", frames[0].Text)
	assert.Equal(t, "About us\nHome\nGone", frames[1].Text)

	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 1, res.Failures, "/missing")
	assert.Equal(t, ReasonCompleted, res.Reason)
}

func TestCrawlSeedTimeoutLeavesEmptyOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "scraped_content.txt")
	require.NoError(t, os.WriteFile(out, []byte("stale content"), 0o644))

	cfg := testConfig()
	cfg.OutputPath = out
	c := NewCrawler(cfg, NewCollyFetcher("scribe-test/1.0", 50*time.Millisecond, 0), textFileOpener(out), nil)

	res, err := c.Run(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pages)
	assert.Equal(t, 1, res.Failures)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Empty(t, data, "previous output is truncated")
}

func TestCrawlLatin1SiteToTextFile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		fmt.Fprint(w, "<html><body><p>Caf\xe9 cr\xe8me</p><a href=\"/meta\"></a></body></html>")
	})
	mux.HandleFunc("/meta", func(w http.ResponseWriter, r *http.Request) {
		// declared in the document only
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><meta charset=\"iso-8859-1\"></head><body><p>Na\xefve</p></body></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "scraped_content.txt")
	cfg := testConfig()
	cfg.OutputPath = out

	c := NewCrawler(cfg, NewCollyFetcher("scribe-test/1.0", time.Second, 0), textFileOpener(out), nil)
	res, err := c.Run(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	frames, err := storage.ParseFrames(f)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "Café crème", frames[0].Text)
	assert.Equal(t, "Naïve", frames[1].Text)
}
