package storage

import (
	"context"
	"errors"
)

// RecordWriter is anything that accepts page records and can be closed
type RecordWriter interface {
	WriteRecord(ctx context.Context, rec PageRecord) error
	Close() error
}

type failureWriter interface {
	RecordFailure(ctx context.Context, f FetchFailure) error
}

// MultiSink fans records out to several writers in order
type MultiSink struct {
	writers []RecordWriter
}

// Multi combines writers; nil entries are ignored
func Multi(writers ...RecordWriter) *MultiSink {
	m := &MultiSink{}
	for _, w := range writers {
		if w != nil {
			m.writers = append(m.writers, w)
		}
	}
	return m
}

// WriteRecord stops at the first writer that fails
func (m *MultiSink) WriteRecord(ctx context.Context, rec PageRecord) error {
	for _, w := range m.writers {
		if err := w.WriteRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// RecordFailure forwards to every writer that tracks failures
func (m *MultiSink) RecordFailure(ctx context.Context, f FetchFailure) error {
	var errs []error
	for _, w := range m.writers {
		if fw, ok := w.(failureWriter); ok {
			if err := fw.RecordFailure(ctx, f); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Close closes every writer, even after a failure
func (m *MultiSink) Close() error {
	var errs []error
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
