// Package work defines the background work model: a registry of work types,
// a processor that sweeps them on a schedule, and the in-flight registry that
// keeps scheduled and HTTP-triggered runs of the same work from overlapping.
//
// A work type is a template ("sync:users"); pairing it with a subject (a
// tenant id, or "" for process-global work like the commerce sync) yields one
// unit of work. Completion times are tracked in memory, so a restart re-runs
// everything on the first sweep; every execution is an idempotent upsert, so
// that costs one redundant pass, never duplicate data.
package work

import (
	"context"
	"time"
)

// WorkTimeout is the maximum duration one work execution may run before its
// context is cancelled.
const WorkTimeout = 7 * time.Minute

// Priority orders work types within a sweep. Higher priorities run first,
// which together with DependsOn keeps the directory chain ahead of the
// analyses that read it.
type Priority int

const (
	// PriorityLow is for housekeeping work.
	PriorityLow Priority = iota
	// PriorityMedium is for analyses and the commerce refresh.
	PriorityMedium
	// PriorityHigh is for per-tenant directory syncs.
	PriorityHigh
	// PriorityCritical is for work everything else depends on.
	PriorityCritical
)

// String returns a human-readable name for the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// WorkType defines a kind of background work. Registered once; the processor
// expands it into per-subject executions on every sweep.
type WorkType struct {
	// ID identifies the work type, e.g. "sync:users" or "analysis:run".
	ID string

	// DependsOn lists work type IDs that must have completed for the same
	// subject before this work runs.
	DependsOn []string

	// Interval is the minimum time between completed runs per subject.
	// Zero means on-demand only.
	Interval time.Duration

	// Priority determines sweep order across work types.
	Priority Priority

	// FindSubjects returns the subjects currently needing this work:
	// tenant ids for per-tenant work, []string{""} for global work, nil
	// when there is nothing to do.
	FindSubjects func() []string

	// Execute performs the work for one subject.
	Execute func(ctx context.Context, subject string) error
}
