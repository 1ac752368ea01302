package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/alvmarrod/site-scribe/internal/config"
	"github.com/alvmarrod/site-scribe/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrSink wraps every failure to open, write or close the output
var ErrSink = errors.New("sink failure")

// Sink receives one record per successfully fetched page
type Sink interface {
	WriteRecord(ctx context.Context, rec storage.PageRecord) error
	Close() error
}

// FailureRecorder is implemented by sinks that also track abandoned URLs
type FailureRecorder interface {
	RecordFailure(ctx context.Context, f storage.FetchFailure) error
}

// SinkOpener opens the output of a run. It is called once per run, after the
// seed has been validated
type SinkOpener func(ctx context.Context, run storage.Run) (Sink, error)

// Metrics receives crawl events
type Metrics interface {
	PageFetched(duration time.Duration)
	PageFailed()
	DuplicateSkipped()
	LinksFound(discovered, enqueued, dropped int)
}

// StopReason explains why a run ended
type StopReason string

const (
	ReasonCompleted  StopReason = "completed"
	ReasonMaxPages   StopReason = "max_pages"
	ReasonCanceled   StopReason = "canceled"
	ReasonSinkFailed StopReason = "sink_failed"
)

// Result summarizes a finished run
type Result struct {
	RunID      string
	SeedURL    string
	Domain     string
	OutputPath string
	Pages      int
	Failures   int
	Duplicates int
	Dropped    int
	// Visited counts distinct URLs taken off the frontier
	Visited int
	// Unvisited counts URLs still queued when the page cap or a sink
	// failure stopped the run
	Unvisited  int
	Reason     StopReason
	StartedAt  time.Time
	FinishedAt time.Time
}

// Run converts the result into its storage form
func (r *Result) Run() storage.Run {
	status := storage.RunCompleted
	switch r.Reason {
	case ReasonCanceled:
		status = storage.RunCanceled
	case ReasonSinkFailed:
		status = storage.RunFailed
	}
	return storage.Run{
		ID:         r.RunID,
		SeedURL:    r.SeedURL,
		Domain:     r.Domain,
		OutputPath: r.OutputPath,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Status:     status,
		Reason:     string(r.Reason),
		Pages:      r.Pages,
		Failures:   r.Failures,
	}
}

// Crawler orchestrates single-domain crawl runs. It holds no per-run state,
// so one Crawler may serve several sequential or concurrent runs
type Crawler struct {
	cfg      *config.Config
	fetcher  Fetcher
	openSink SinkOpener
	metrics  Metrics
	newID    func() string
	now      func() time.Time
}

// NewCrawler creates a new crawler instance; m may be nil
func NewCrawler(cfg *config.Config, fetcher Fetcher, openSink SinkOpener, m Metrics) *Crawler {
	if m == nil {
		m = nopMetrics{}
	}
	return &Crawler{
		cfg:      cfg,
		fetcher:  fetcher,
		openSink: openSink,
		metrics:  m,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// run is the state owned by a single invocation of Crawler.Run
type run struct {
	c        *Crawler
	info     storage.Run
	scope    DomainScope
	frontier *Frontier
	visited  *VisitedSet
	throttle *Throttle
	sink     Sink
	log      *logrus.Entry
	cancel   context.CancelFunc

	mu         sync.Mutex
	attempts   int
	pages      int
	failures   int
	duplicates int
	dropped    int
	unvisited  int
	stopReason StopReason
	sinkErr    error
}

// Run crawls breadth-first from seedURL until the frontier is exhausted, the
// page cap is reached, ctx is canceled or the sink fails. Per-URL fetch
// failures are logged and never abort the run. The sink is always closed
// before Run returns
func (c *Crawler) Run(ctx context.Context, seedURL string) (*Result, error) {
	seed := strings.TrimSpace(seedURL)
	domain, err := ExtractDomain(seed)
	if err != nil {
		return nil, err
	}

	info := storage.Run{
		ID:         c.newID(),
		SeedURL:    seed,
		Domain:     domain,
		OutputPath: c.cfg.OutputPath,
		StartedAt:  c.now(),
		Status:     storage.RunRunning,
	}
	log := logrus.WithFields(logrus.Fields{
		"run_id": info.ID,
		"domain": domain,
	})

	sink, err := c.openSink(ctx, info)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSink, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{
		c:        c,
		info:     info,
		scope:    NewDomainScope(domain, c.cfg.StrictDomain),
		frontier: NewFrontier(c.cfg.MaxQueue),
		visited:  NewVisitedSet(),
		throttle: NewThrottle(c.cfg.RateLimit()),
		sink:     sink,
		log:      log,
		cancel:   cancel,
	}

	closed := false
	closeSink := func() error {
		if closed {
			return nil
		}
		closed = true
		return sink.Close()
	}
	defer closeSink()

	log.Infof("Starting crawl of %s with %d workers", seed, c.cfg.Workers)
	r.frontier.Push(seed)

	// Wake blocked workers on cancellation
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			r.frontier.Stop()
		case <-watchDone:
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			r.worker(runCtx, id)
		}(i + 1)
	}
	wg.Wait()
	close(watchDone)

	closeErr := closeSink()
	result := r.result(ctx)

	switch {
	case r.sinkErr != nil:
		log.WithError(r.sinkErr).Error("Crawl aborted: output failure")
		return result, fmt.Errorf("%w: %w", ErrSink, r.sinkErr)
	case closeErr != nil:
		result.Reason = ReasonSinkFailed
		log.WithError(closeErr).Error("Crawl aborted: failed to close output")
		return result, fmt.Errorf("%w: %w", ErrSink, closeErr)
	case result.Reason == ReasonCanceled:
		log.Warnf("Crawl canceled after %d pages", result.Pages)
		return result, ctx.Err()
	}

	log.Infof("Crawl %s: %d pages, %d failures, %d duplicates skipped, %d URLs left unvisited. Content saved to %s",
		result.Reason, result.Pages, result.Failures, result.Duplicates, result.Unvisited, result.OutputPath)
	return result, nil
}

func (r *run) worker(ctx context.Context, id int) {
	log := r.log.WithField("worker", id)
	log.Debug("Worker started")

	for {
		target, ok := r.frontier.Pop()
		if !ok {
			log.Debug("Worker exiting: frontier closed")
			return
		}
		log.Debugf("Visiting %s (%d queued)", target, r.frontier.Len())
		r.visit(ctx, log, target)
		r.frontier.Done()
	}
}

// visit processes one dequeued URL. A panic while handling the page is
// contained to that URL
func (r *run) visit(ctx context.Context, log *logrus.Entry, target string) {
	if ctx.Err() != nil {
		return
	}

	// Mark visited before fetching so concurrent duplicates are never fetched twice
	if !r.visited.Claim(target) {
		r.mu.Lock()
		r.duplicates++
		r.mu.Unlock()
		r.c.metrics.DuplicateSkipped()
		log.Debugf("Skipping already visited %s", target)
		return
	}

	if !r.admit() {
		log.Infof("Page limit of %d reached, stopping", r.c.cfg.MaxPages)
		r.stop(ReasonMaxPages)
		return
	}

	defer func() {
		if p := recover(); p != nil {
			r.recordFailure(ctx, log, target, 0, fmt.Errorf("panic: %v", p))
		}
	}()

	if err := r.throttle.Wait(ctx); err != nil {
		return
	}

	started := r.c.now()
	page, err := r.c.fetcher.Fetch(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		status := 0
		var fe *FetchError
		if errors.As(err, &fe) {
			status = fe.StatusCode
		}
		r.recordFailure(ctx, log, target, status, err)
		return
	}
	elapsed := r.c.now().Sub(started)

	doc, err := ParseDocument(page.Body, page.ContentType)
	if err != nil {
		// Unparseable pages are still recorded, with an empty body
		log.WithError(err).Warnf("Failed to parse %s", target)
	}

	rec := storage.PageRecord{
		RunID:      r.info.ID,
		URL:        target,
		FinalURL:   page.FinalURL,
		StatusCode: page.StatusCode,
		Text:       ExtractText(doc),
		FetchedAt:  started,
		Duration:   elapsed,
	}
	// A fetched page is persisted even if the run is being canceled
	if err := r.sink.WriteRecord(context.WithoutCancel(ctx), rec); err != nil {
		r.failSink(err)
		return
	}

	r.mu.Lock()
	r.pages++
	r.mu.Unlock()
	r.c.metrics.PageFetched(elapsed)
	log.Infof("Scraped %s (status=%d, %s)", target, page.StatusCode, elapsed.Round(time.Millisecond))

	r.enqueueLinks(log, doc, r.baseURL(page, target))
}

func (r *run) enqueueLinks(log *logrus.Entry, doc *goquery.Document, base *url.URL) {
	links := ExtractLinks(doc, base, r.scope)

	enqueued, dropped := 0, 0
	for _, link := range links {
		if r.visited.Contains(link) {
			continue
		}
		if r.frontier.Push(link) {
			enqueued++
		} else {
			dropped++
		}
	}

	if dropped > 0 {
		r.mu.Lock()
		r.dropped += dropped
		r.mu.Unlock()
		log.Warnf("Dropped %d links from %s: frontier full or closed", dropped, base)
	}
	r.c.metrics.LinksFound(len(links), enqueued, dropped)
}

// baseURL is the post-redirect location of the page, used to resolve its links
func (r *run) baseURL(page *Page, target string) *url.URL {
	for _, raw := range []string{page.FinalURL, target} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil {
			return u
		}
	}
	return nil
}

// admit counts a fetch attempt against the page cap
func (r *run) admit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.c.cfg.MaxPages > 0 && r.attempts >= r.c.cfg.MaxPages {
		return false
	}
	r.attempts++
	return true
}

func (r *run) recordFailure(ctx context.Context, log *logrus.Entry, target string, status int, err error) {
	r.mu.Lock()
	r.failures++
	r.mu.Unlock()
	r.c.metrics.PageFailed()
	log.WithError(err).Warnf("Failed to scrape %s", target)

	fr, ok := r.sink.(FailureRecorder)
	if !ok {
		return
	}
	failure := storage.FetchFailure{
		RunID:      r.info.ID,
		URL:        target,
		StatusCode: status,
		Error:      err.Error(),
		FailedAt:   r.c.now(),
	}
	if rerr := fr.RecordFailure(context.WithoutCancel(ctx), failure); rerr != nil {
		log.WithError(rerr).Warn("Failed to record fetch failure")
	}
}

func (r *run) stop(reason StopReason) {
	pending := r.frontier.Len()
	r.mu.Lock()
	if r.stopReason == "" {
		r.stopReason = reason
		r.unvisited = pending
	}
	r.mu.Unlock()
	r.frontier.Stop()
}

func (r *run) failSink(err error) {
	r.mu.Lock()
	if r.sinkErr == nil {
		r.sinkErr = err
	}
	r.mu.Unlock()
	r.stop(ReasonSinkFailed)
	r.cancel()
}

func (r *run) result(parent context.Context) *Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	reason := r.stopReason
	if reason == "" {
		reason = ReasonCompleted
		if parent.Err() != nil {
			reason = ReasonCanceled
		}
	}

	return &Result{
		RunID:      r.info.ID,
		SeedURL:    r.info.SeedURL,
		Domain:     r.info.Domain,
		OutputPath: r.info.OutputPath,
		Pages:      r.pages,
		Failures:   r.failures,
		Duplicates: r.duplicates,
		Dropped:    r.dropped,
		Visited:    r.visited.Len(),
		Unvisited:  r.unvisited,
		Reason:     reason,
		StartedAt:  r.info.StartedAt,
		FinishedAt: r.c.now(),
	}
}

type nopMetrics struct{}

func (nopMetrics) PageFetched(time.Duration) {}
func (nopMetrics) PageFailed() {}
func (nopMetrics) DuplicateSkipped() {}
func (nopMetrics) LinksFound(int, int, int) {}
