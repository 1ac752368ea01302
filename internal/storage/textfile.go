package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	pageMarkerPrefix = "### Page: "
	pageMarkerSuffix = " ###"
)

// Separator closes every frame in the text output
var Separator = strings.Repeat("=", 80)

// ErrClosed is returned when writing to a closed sink
var ErrClosed = errors.New("sink closed")

// TextFile writes one frame per page to a plain UTF-8 file
type TextFile struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	closed bool
}

// OpenTextFile creates (or truncates) the output file at path
func OpenTextFile(path string) (*TextFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	return &TextFile{
		path: path,
		file: file,
		w:    bufio.NewWriter(file),
	}, nil
}

// Path returns the destination file
func (t *TextFile) Path() string {
	return t.path
}

// WriteRecord appends a framed page to the output
func (t *TextFile) WriteRecord(_ context.Context, rec PageRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if err := writeFrame(t.w, rec.URL, rec.Text); err != nil {
		return fmt.Errorf("failed to write page %s: %w", rec.URL, err)
	}
	return nil
}

// Close flushes buffered frames and closes the file; safe to call twice
func (t *TextFile) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	flushErr := t.w.Flush()
	closeErr := t.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush output file: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output file: %w", closeErr)
	}
	return nil
}

func writeFrame(w io.Writer, url, text string) error {
	_, err := fmt.Fprintf(w, "%s%s%s\n%s\n%s\n\n", pageMarkerPrefix, url, pageMarkerSuffix, text, Separator)
	return err
}

// Frame is one page read back from the text output
type Frame struct {
	URL  string
	Text string
}

// ParseFrames splits text output back into frames. A frame ends at a
// separator line only when it is followed by a blank line and then the next
// page marker or the end of input, so page text may itself contain separator
// lines. Text holding that exact three-line sequence cannot be told apart
// from a frame boundary
func ParseFrames(r io.Reader) ([]Frame, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read frames: %w", err)
	}

	var (
		frames  []Frame
		current *Frame
		body    []string
	)
	for i, line := range lines {
		if current == nil {
			if url, ok := parseMarker(line); ok {
				current = &Frame{URL: url}
				body = body[:0]
			}
			continue
		}

		if line == Separator && endsFrame(lines, i) {
			current.Text = strings.Join(body, "\n")
			frames = append(frames, *current)
			current = nil
			continue
		}
		body = append(body, line)
	}
	if current != nil {
		return frames, fmt.Errorf("unterminated frame for %s", current.URL)
	}
	return frames, nil
}

// endsFrame reports whether the separator at lines[i] closes a frame
func endsFrame(lines []string, i int) bool {
	if i+1 >= len(lines) {
		return true
	}
	if lines[i+1] != "" {
		return false
	}
	if i+2 >= len(lines) {
		return true
	}
	_, ok := parseMarker(lines[i+2])
	return ok
}

func parseMarker(line string) (string, bool) {
	if !strings.HasPrefix(line, pageMarkerPrefix) || !strings.HasSuffix(line, pageMarkerSuffix) {
		return "", false
	}
	url := strings.TrimSuffix(strings.TrimPrefix(line, pageMarkerPrefix), pageMarkerSuffix)
	return url, url != ""
}
