package work

import (
	"sort"
	"sync"
)

// Fingerprint builds the in-flight key for a work type and subject,
// e.g. "sync:users" + "tenant-1" -> "sync:users:tenant-1".
func Fingerprint(workTypeID, subject string) string {
	if subject == "" {
		return workTypeID
	}
	return workTypeID + ":" + subject
}

// InFlight tracks currently executing work by fingerprint. The scheduler and
// the HTTP layer share one instance, so a manual trigger and a scheduled run
// of the same work can never execute concurrently.
type InFlight struct {
	mu      sync.Mutex
	running map[string]struct{}
}

// NewInFlight creates an empty in-flight registry.
func NewInFlight() *InFlight {
	return &InFlight{running: make(map[string]struct{})}
}

// TryAcquire claims the fingerprint. It returns false if the same work is
// already executing; the caller must not proceed in that case.
func (f *InFlight) TryAcquire(fingerprint string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.running[fingerprint]; exists {
		return false
	}
	f.running[fingerprint] = struct{}{}
	return true
}

// Release frees the fingerprint. Safe to call for a fingerprint that was
// never acquired.
func (f *InFlight) Release(fingerprint string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.running, fingerprint)
}

// Running returns a sorted snapshot of currently executing fingerprints.
func (f *InFlight) Running() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, 0, len(f.running))
	for fp := range f.running {
		out = append(out, fp)
	}
	sort.Strings(out)
	return out
}
