package work

import (
	"sync"
	"time"
)

// CompletionTracker records when each (work type, subject) pair last
// completed. The processor reads it for interval gating and dependency
// checks. In-memory only: a restart re-runs everything once.
type CompletionTracker struct {
	mu          sync.RWMutex
	completions map[string]time.Time
}

// NewCompletionTracker creates an empty completion tracker.
func NewCompletionTracker() *CompletionTracker {
	return &CompletionTracker{completions: make(map[string]time.Time)}
}

// MarkCompleted records a successful run at the current time.
func (t *CompletionTracker) MarkCompleted(typeID, subject string) {
	t.MarkCompletedAt(typeID, subject, time.Now())
}

// MarkCompletedAt records a successful run at a specific time. Used by tests
// to age completions.
func (t *CompletionTracker) MarkCompletedAt(typeID, subject string, completedAt time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completions[Fingerprint(typeID, subject)] = completedAt
}

// GetCompletion returns when the pair last completed and whether it ever has.
func (t *CompletionTracker) GetCompletion(typeID, subject string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	completedAt, exists := t.completions[Fingerprint(typeID, subject)]
	return completedAt, exists
}

// IsStale reports whether the pair is due again: never completed, zero
// interval, or last completion older than the interval.
func (t *CompletionTracker) IsStale(typeID, subject string, interval time.Duration) bool {
	if interval == 0 {
		return true
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	completedAt, exists := t.completions[Fingerprint(typeID, subject)]
	if !exists {
		return true
	}
	return time.Since(completedAt) > interval
}

// Clear forgets the completion of one pair, forcing it to run on the next
// sweep.
func (t *CompletionTracker) Clear(typeID, subject string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.completions, Fingerprint(typeID, subject))
}
