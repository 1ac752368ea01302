package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "scribe-test/1.0", r.UserAgent())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body><p>hello</p></body></html>")
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok", http.StatusFound)
	})
	mux.HandleFunc("/mirror", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNonAuthoritativeInfo)
		fmt.Fprint(w, "<p>mirrored</p>")
	})
	mux.HandleFunc("/range", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusPartialContent)
		fmt.Fprint(w, "<p>partial</p>")
	})
	mux.HandleFunc("/latin1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		fmt.Fprint(w, "<html><body><p>caf\xe9</p></body></html>")
	})
	mux.HandleFunc("/large", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<p>"+strings.Repeat("a", 2048)+"</p>")
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCollyFetcherSuccess(t *testing.T) {
	srv := newTestServer(t)
	f := NewCollyFetcher("scribe-test/1.0", time.Second, 0)

	page, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/ok", page.URL)
	assert.Equal(t, srv.URL+"/ok", page.FinalURL)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", page.ContentType)
	assert.Contains(t, string(page.Body), "<p>hello</p>")
}

func TestCollyFetcherRefetchesSameURL(t *testing.T) {
	srv := newTestServer(t)
	f := NewCollyFetcher("scribe-test/1.0", time.Second, 0)

	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), srv.URL+"/ok")
		require.NoError(t, err, "attempt %d", i)
	}
}

func TestCollyFetcherFollowsRedirects(t *testing.T) {
	srv := newTestServer(t)
	f := NewCollyFetcher("scribe-test/1.0", time.Second, 0)

	page, err := f.Fetch(context.Background(), srv.URL+"/moved")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/moved", page.URL)
	assert.True(t, strings.HasSuffix(page.FinalURL, "/ok"), page.FinalURL)
}

func TestCollyFetcherErrorStatus(t *testing.T) {
	srv := newTestServer(t)
	f := NewCollyFetcher("scribe-test/1.0", time.Second, 0)

	tests := []struct {
		path   string
		status int
	}{
		{"/missing", http.StatusNotFound},
		{"/broken", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			page, err := f.Fetch(context.Background(), srv.URL+tt.path)
			require.Error(t, err)
			assert.Nil(t, page)

			var fe *FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.status, fe.StatusCode)
			assert.Equal(t, srv.URL+tt.path, fe.URL)
			assert.Contains(t, fe.Error(), fmt.Sprintf("status %d", tt.status))
		})
	}
}

func TestCollyFetcherNonOKSuccess(t *testing.T) {
	srv := newTestServer(t)
	f := NewCollyFetcher("scribe-test/1.0", time.Second, 0)

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/mirror", http.StatusNonAuthoritativeInfo, "<p>mirrored</p>"},
		{"/range", http.StatusPartialContent, "<p>partial</p>"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			page, err := f.Fetch(context.Background(), srv.URL+tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.status, page.StatusCode)
			assert.Equal(t, tt.body, string(page.Body))
		})
	}
}

func TestCollyFetcherTranscodedCharset(t *testing.T) {
	srv := newTestServer(t)
	f := NewCollyFetcher("scribe-test/1.0", time.Second, 0)

	page, err := f.Fetch(context.Background(), srv.URL+"/latin1")
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", page.ContentType)

	doc, err := ParseDocument(page.Body, page.ContentType)
	require.NoError(t, err)
	assert.Equal(t, "café", ExtractText(doc))
}

func TestCollyFetcherBodyLimit(t *testing.T) {
	srv := newTestServer(t)

	page, err := NewCollyFetcher("scribe-test/1.0", time.Second, 1024).Fetch(context.Background(), srv.URL+"/large")
	require.NoError(t, err)
	assert.Len(t, page.Body, 1024)
	assert.True(t, page.Truncated)

	page, err = NewCollyFetcher("scribe-test/1.0", time.Second, 0).Fetch(context.Background(), srv.URL+"/large")
	require.NoError(t, err)
	assert.Len(t, page.Body, 2048+len("<p></p>"))
	assert.False(t, page.Truncated)

	page, err = NewCollyFetcher("scribe-test/1.0", time.Second, 1024).Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.False(t, page.Truncated)
}

func TestDecodedContentType(t *testing.T) {
	tests := map[string]string{
		"text/html":                       "text/html",
		"":                                "",
		"text/html; charset=utf-8":        "text/html; charset=utf-8",
		"text/html; charset=ISO-8859-1":   "text/html; charset=utf-8",
		"application/xhtml+xml;charset=x": "application/xhtml+xml; charset=utf-8",
		"text/html; charset=\"broken":     "text/html; charset=utf-8",
	}
	for in, want := range tests {
		assert.Equal(t, want, decodedContentType(in), in)
	}
}

func TestCollyFetcherTimeout(t *testing.T) {
	srv := newTestServer(t)
	f := NewCollyFetcher("scribe-test/1.0", 50*time.Millisecond, 0)

	start := time.Now()
	_, err := f.Fetch(context.Background(), srv.URL+"/slow")
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.StatusCode)
}

func TestCollyFetcherConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	f := NewCollyFetcher("scribe-test/1.0", time.Second, 0)
	_, err := f.Fetch(context.Background(), addr+"/")

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.StatusCode)
}

func TestCollyFetcherCanceledContext(t *testing.T) {
	srv := newTestServer(t)
	f := NewCollyFetcher("scribe-test/1.0", 5*time.Second, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.Fetch(ctx, srv.URL+"/ok")
	assert.ErrorIs(t, err, context.Canceled)

	ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = f.Fetch(ctx, srv.URL+"/slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
