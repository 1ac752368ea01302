package storage

import "time"

// RunStatus is the terminal state recorded for a crawl run
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCanceled  RunStatus = "canceled"
	RunFailed    RunStatus = "failed"
)

// Run describes one crawl invocation
type Run struct {
	ID         string
	SeedURL    string
	Domain     string
	OutputPath string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Reason     string
	Pages      int
	Failures   int
}

// PageRecord is the extracted text of one successfully fetched page
type PageRecord struct {
	RunID      string
	URL        string
	FinalURL   string
	StatusCode int
	Text       string
	FetchedAt  time.Time
	Duration   time.Duration
}

// FetchFailure records a URL that was abandoned for the run
type FetchFailure struct {
	RunID      string
	URL        string
	StatusCode int
	Error      string
	FailedAt   time.Time
}

// Metrics tracks crawl statistics for export on exit
type Metrics struct {
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	PagesFetched      int       `json:"pages_fetched"`
	PagesFailed       int       `json:"pages_failed"`
	DuplicatesSkipped int       `json:"duplicates_skipped"`
	LinksDiscovered   int       `json:"links_discovered"`
	LinksEnqueued     int       `json:"links_enqueued"`
	LinksDropped      int       `json:"links_dropped"`
	TotalFetchTimeMs  int64     `json:"total_fetch_time_ms"`
	AvgFetchTimeMs    int64     `json:"avg_fetch_time_ms"`
	TerminationReason string    `json:"termination_reason"`
}
