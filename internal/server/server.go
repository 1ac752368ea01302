// Package server exposes the crawl trigger over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alvmarrod/site-scribe/internal/crawler"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const formPage = `<!DOCTYPE html>
<html>
<head><title>site-scribe</title></head>
<body>
<form method="post">
    Enter URL to scrape: <input type="text" name="url">
    <input type="submit" value="Scrape">
</form>
</body>
</html>
`

// CrawlFunc runs one crawl to completion
type CrawlFunc func(ctx context.Context, seed string) (*crawler.Result, error)

// Server serves the crawl form and runs one crawl at a time, since every run
// truncates the same output file
type Server struct {
	router chi.Router
	crawl  CrawlFunc
	busy   sync.Mutex
}

// New constructs a Server. gatherer backs /metrics and may be nil
func New(crawl CrawlFunc, gatherer prometheus.Gatherer) *Server {
	s := &Server{crawl: crawl}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", s.form)
	r.Post("/", s.submit)
	r.Get("/healthz", s.healthz)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.router = r
	return s
}

// Handler returns the router for use with http.Server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) form(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	writeBody(w, http.StatusOK, formPage)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeText(w, http.StatusBadRequest, "Invalid URL. Please try again.")
		return
	}
	seed := strings.TrimSpace(r.PostForm.Get("url"))
	if !crawler.IsValidURL(seed) {
		writeText(w, http.StatusBadRequest, "Invalid URL. Please try again.")
		return
	}

	if !s.busy.TryLock() {
		writeText(w, http.StatusConflict, "A crawl is already running. Please try again later.")
		return
	}
	defer s.busy.Unlock()

	res, err := s.crawl(r.Context(), seed)
	switch {
	case err == nil:
		writeText(w, http.StatusOK, fmt.Sprintf("Scraping completed. Content saved to %s", res.OutputPath))
	case errors.Is(err, crawler.ErrInvalidURL):
		writeText(w, http.StatusBadRequest, "Invalid URL. Please try again.")
	case errors.Is(err, context.Canceled):
		logrus.Warnf("Crawl of %s canceled by client", seed)
		writeText(w, http.StatusServiceUnavailable, "Scraping canceled.")
	default:
		logrus.Errorf("Crawl of %s failed: %v", seed, err)
		writeText(w, http.StatusInternalServerError, "Scraping failed. Please check the server logs.")
	}
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	writeBody(w, status, body)
}

func writeBody(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		logrus.Warnf("Failed to write response: %v", err)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logrus.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).Round(time.Millisecond),
		}).Info("HTTP request")
	})
}
