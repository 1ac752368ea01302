package crawler

import (
	"sync"
)

// Frontier is the thread-safe FIFO of URLs awaiting a fetch attempt.
// Duplicates are accepted; they are filtered by the visited set on dequeue
type Frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []string
	maxSize  int
	inFlight int
	stopped  bool
}

// NewFrontier creates an empty frontier holding at most maxSize pending
// URLs (0 = unbounded)
func NewFrontier(maxSize int) *Frontier {
	f := &Frontier{
		items:   make([]string, 0),
		maxSize: maxSize,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push appends a URL. Returns false if the frontier is stopped or full
func (f *Frontier) Push(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped {
		return false
	}
	if f.maxSize > 0 && len(f.items) >= f.maxSize {
		return false
	}

	f.items = append(f.items, url)

	// Signal waiting workers
	f.cond.Signal()

	return true
}

// Pop removes and returns the head of the frontier, blocking while it is
// empty but other popped items are still in flight (they may push more).
// Every successful Pop must be paired with Done.
// Returns ("", false) once stopped, or once empty with nothing in flight
func (f *Frontier) Pop() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.stopped {
			return "", false
		}

		if len(f.items) > 0 {
			url := f.items[0]
			f.items[0] = ""
			f.items = f.items[1:]
			f.inFlight++
			return url, true
		}

		if f.inFlight == 0 {
			// Exhausted: wake everyone else so they exit too
			f.cond.Broadcast()
			return "", false
		}

		f.cond.Wait()
	}
}

// Done marks a popped URL as fully processed
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.inFlight--
	if f.inFlight == 0 && len(f.items) == 0 {
		f.cond.Broadcast()
	}
}

// Stop makes every current and future Pop return false. Pending URLs are discarded
func (f *Frontier) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopped = true
	f.items = nil
	// Broadcast to wake all waiting workers
	f.cond.Broadcast()
}

// Len returns the current number of pending URLs
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}
