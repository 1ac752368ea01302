package app

import (
	"context"
	"fmt"
	"time"

	"github.com/alvmarrod/site-scribe/internal/config"
	"github.com/alvmarrod/site-scribe/internal/crawler"
	"github.com/alvmarrod/site-scribe/internal/metrics"
	"github.com/alvmarrod/site-scribe/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const progressInterval = 10 * time.Second

// Scraper wires a crawler to the text output, the optional page index and
// metrics. It is shared by the CLI and the HTTP trigger
type Scraper struct {
	cfg     *config.Config
	crawler *crawler.Crawler
	tracker *metrics.Tracker
	index   *storage.Index
}

// New builds a Scraper from cfg. When reg is non-nil crawl metrics are
// exported through it
func New(cfg *config.Config, reg prometheus.Registerer) (*Scraper, error) {
	return NewWithFetcher(cfg, crawler.NewCollyFetcher(cfg.UserAgent, cfg.FetchTimeout(), cfg.MaxBodyBytes), reg)
}

// NewWithFetcher is New with a caller-supplied fetcher
func NewWithFetcher(cfg *config.Config, fetcher crawler.Fetcher, reg prometheus.Registerer) (*Scraper, error) {
	tracker, err := metrics.NewTracker(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	s := &Scraper{
		cfg:     cfg,
		tracker: tracker,
	}

	if cfg.IndexPath != "" {
		idx, err := storage.NewIndex(cfg.IndexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize index: %w", err)
		}
		s.index = idx
		logrus.Infof("Page index initialized: %s", cfg.IndexPath)
	}

	s.crawler = crawler.NewCrawler(cfg, fetcher, s.openSink, tracker)
	return s, nil
}

// Crawl runs one crawl from seed, then finalizes the index entry and the
// metrics export. The result is nil only when the run never started
func (s *Scraper) Crawl(ctx context.Context, seed string) (*crawler.Result, error) {
	stopProgress := s.startProgress(progressInterval)
	res, err := s.crawler.Run(ctx, seed)
	stopProgress()

	if res == nil {
		return nil, err
	}
	s.finish(res)
	return res, err
}

// Index returns the page index, or nil when disabled
func (s *Scraper) Index() *storage.Index {
	return s.index
}

// Close releases the page index
func (s *Scraper) Close() error {
	if s.index == nil {
		return nil
	}
	return s.index.Close()
}

// openSink truncates the text output and, when enabled, registers the run in
// the index so both receive every record
func (s *Scraper) openSink(ctx context.Context, run storage.Run) (crawler.Sink, error) {
	text, err := storage.OpenTextFile(s.cfg.OutputPath)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Writing page text of run %s to %s", run.ID, text.Path())
	if s.index == nil {
		return text, nil
	}

	indexRun, err := s.index.BeginRun(ctx, run)
	if err != nil {
		text.Close()
		return nil, err
	}
	return storage.Multi(text, indexRun), nil
}

func (s *Scraper) finish(res *crawler.Result) {
	logrus.Info("Final stats: " + s.tracker.LogProgress())

	if s.index != nil {
		if err := s.index.FinishRun(context.Background(), res.Run()); err != nil {
			logrus.Errorf("Failed to finalize run %s in index: %v", res.RunID, err)
		}
	}

	if s.cfg.MetricsPath != "" {
		if err := s.tracker.WriteToFile(s.cfg.MetricsPath, string(res.Reason)); err != nil {
			logrus.Errorf("Failed to write metrics: %v", err)
		} else {
			logrus.Infof("Metrics written to %s", s.cfg.MetricsPath)
		}
	}
}

// startProgress logs a progress line every interval until the returned func is called
func (s *Scraper) startProgress(interval time.Duration) func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				logrus.Info(s.tracker.LogProgress())
			case <-stop:
				return
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}
