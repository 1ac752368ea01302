package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alvmarrod/site-scribe/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "scribe"

// Tracker holds and manages crawl metrics
type Tracker struct {
	mu               sync.Mutex
	data             storage.Metrics
	totalFetchTimeMs int64
	fetchCount       int

	prom *collectors
}

type collectors struct {
	pages      *prometheus.CounterVec
	duplicates prometheus.Counter
	links      *prometheus.CounterVec
	fetchTime  prometheus.Histogram
}

// NewTracker creates a new metrics tracker. When reg is non-nil every counter
// is mirrored into Prometheus collectors registered on it
func NewTracker(reg prometheus.Registerer) (*Tracker, error) {
	t := &Tracker{
		data: storage.Metrics{
			StartTime: time.Now(),
		},
	}
	if reg == nil {
		return t, nil
	}

	c := &collectors{
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_total",
			Help:      "Fetch attempts by outcome.",
		}, []string{"outcome"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_skipped_total",
			Help:      "Frontier entries skipped because the URL was already visited.",
		}),
		links: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_total",
			Help:      "In-domain links by fate.",
		}, []string{"fate"}),
		fetchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of successful page fetches.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	for _, col := range []prometheus.Collector{c.pages, c.duplicates, c.links, c.fetchTime} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register collector: %w", err)
		}
	}
	t.prom = c
	return t, nil
}

// PageFetched records a successful fetch and its duration
func (t *Tracker) PageFetched(duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesFetched++
	t.totalFetchTimeMs += duration.Milliseconds()
	t.fetchCount++
	if t.prom != nil {
		t.prom.pages.WithLabelValues("fetched").Inc()
		t.prom.fetchTime.Observe(duration.Seconds())
	}
}

// PageFailed increments the failed fetch counter
func (t *Tracker) PageFailed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.PagesFailed++
	if t.prom != nil {
		t.prom.pages.WithLabelValues("failed").Inc()
	}
}

// DuplicateSkipped increments the dedup counter
func (t *Tracker) DuplicateSkipped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.DuplicatesSkipped++
	if t.prom != nil {
		t.prom.duplicates.Inc()
	}
}

// LinksFound records the outcome of link extraction for one page
func (t *Tracker) LinksFound(discovered, enqueued, dropped int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data.LinksDiscovered += discovered
	t.data.LinksEnqueued += enqueued
	t.data.LinksDropped += dropped
	if t.prom != nil {
		t.prom.links.WithLabelValues("discovered").Add(float64(discovered))
		t.prom.links.WithLabelValues("enqueued").Add(float64(enqueued))
		t.prom.links.WithLabelValues("dropped").Add(float64(dropped))
	}
}

// Snapshot returns a copy of current metrics
func (t *Tracker) Snapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := t.data
	snapshot.TotalFetchTimeMs = t.totalFetchTimeMs

	// Calculate average fetch time
	if t.fetchCount > 0 {
		snapshot.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}

	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	t.mu.Unlock()

	jsonData, err := json.MarshalIndent(t.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0o644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// LogProgress renders current metrics as one line (for periodic updates)
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Pages: %d fetched, %d failed, %d duplicates | Links: %d discovered, %d enqueued, %d dropped",
		t.data.PagesFetched,
		t.data.PagesFailed,
		t.data.DuplicatesSkipped,
		t.data.LinksDiscovered,
		t.data.LinksEnqueued,
		t.data.LinksDropped,
	)
}
