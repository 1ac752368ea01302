package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Index keeps a queryable SQLite copy of every run, page and failure
type Index struct {
	db *sql.DB
}

// IndexRun is the per-run handle on an Index used as a crawl sink
type IndexRun struct {
	idx *Index
	run Run
}

// NewIndex opens/creates the index database and initializes its schema
func NewIndex(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	idx := &Index{db: db}

	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return idx, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Index) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		seed_url TEXT NOT NULL,
		domain TEXT NOT NULL,
		output_path TEXT,
		status TEXT NOT NULL,
		reason TEXT,
		pages INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS pages (
		page_id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		final_url TEXT,
		status_code INTEGER,
		content TEXT,
		duration_ms INTEGER,
		fetched_at TIMESTAMP NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id),
		UNIQUE(run_id, url)
	);

	CREATE TABLE IF NOT EXISTS failures (
		failure_id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		url TEXT NOT NULL,
		status_code INTEGER,
		error TEXT,
		failed_at TIMESTAMP NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id);
	CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// BeginRun inserts the run row and returns a sink attributing records to it
func (s *Index) BeginRun(ctx context.Context, run Run) (*IndexRun, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, seed_url, domain, output_path, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.SeedURL, run.Domain, run.OutputPath, RunRunning, run.StartedAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return &IndexRun{idx: s, run: run}, nil
}

// FinishRun stores the terminal status and counters of a run
func (s *Index) FinishRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, reason = ?, pages = ?, failures = ?, finished_at = ?
		WHERE run_id = ?
	`, run.Status, run.Reason, run.Pages, run.Failures, run.FinishedAt.UTC(), run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// WriteRecord inserts a page; a second record for the same URL in a run is ignored
func (r *IndexRun) WriteRecord(ctx context.Context, rec PageRecord) error {
	_, err := r.idx.db.ExecContext(ctx, `
		INSERT INTO pages (run_id, url, final_url, status_code, content, duration_ms, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, url) DO NOTHING
	`, r.run.ID, rec.URL, rec.FinalURL, rec.StatusCode, rec.Text,
		rec.Duration.Milliseconds(), rec.FetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert page: %w", err)
	}
	return nil
}

// RecordFailure inserts an abandoned URL
func (r *IndexRun) RecordFailure(ctx context.Context, f FetchFailure) error {
	_, err := r.idx.db.ExecContext(ctx, `
		INSERT INTO failures (run_id, url, status_code, error, failed_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.run.ID, f.URL, f.StatusCode, f.Error, f.FailedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert failure: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id, returns nil if not found
func (s *Index) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		run        Run
		outputPath sql.NullString
		reason     sql.NullString
		finishedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, seed_url, domain, output_path, status, reason, pages, failures, started_at, finished_at
		FROM runs
		WHERE run_id = ?
	`, runID).Scan(&run.ID, &run.SeedURL, &run.Domain, &outputPath, &run.Status, &reason,
		&run.Pages, &run.Failures, &run.StartedAt, &finishedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.OutputPath = outputPath.String
	run.Reason = reason.String
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return &run, nil
}

// ListPages returns the pages of a run in the order they were written
func (s *Index) ListPages(ctx context.Context, runID string) ([]PageRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, url, final_url, status_code, content, duration_ms, fetched_at
		FROM pages
		WHERE run_id = ?
		ORDER BY page_id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []PageRecord
	for rows.Next() {
		var (
			rec        PageRecord
			finalURL   sql.NullString
			durationMs int64
		)
		if err := rows.Scan(&rec.RunID, &rec.URL, &finalURL, &rec.StatusCode, &rec.Text, &durationMs, &rec.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		rec.FinalURL = finalURL.String
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		pages = append(pages, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pages: %w", err)
	}

	return pages, nil
}

// CountFailures returns how many URLs were abandoned in a run
func (s *Index) CountFailures(ctx context.Context, runID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM failures WHERE run_id = ?", runID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count failures: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (s *Index) Close() error {
	return s.db.Close()
}

// Close releases the run handle; the database stays open until Index.Close
func (r *IndexRun) Close() error {
	return nil
}
