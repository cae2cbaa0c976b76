package work

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// HistoryRecorder persists one row per work execution. Implemented by the
// scheduler's job history store; nil disables recording.
type HistoryRecorder interface {
	Record(job, subject, status string, duration time.Duration, errMessage string)
}

// Processor expands work types into per-subject executions. Types run in
// priority order, one type at a time; subjects within a type run in parallel
// up to the configured limit. Processing a type to completion before moving
// on is what lets same-sweep dependents see their dependencies as done.
type Processor struct {
	registry    *Registry
	completion  *CompletionTracker
	inflight    *InFlight
	history     HistoryRecorder
	parallelism int
	timeout     time.Duration
	log         zerolog.Logger
}

// NewProcessor creates a work processor. The in-flight registry should be
// the same instance the HTTP handlers use, so manual and scheduled runs of
// the same work exclude each other.
func NewProcessor(
	registry *Registry,
	completion *CompletionTracker,
	inflight *InFlight,
	history HistoryRecorder,
	parallelism int,
	log zerolog.Logger,
) *Processor {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Processor{
		registry:    registry,
		completion:  completion,
		inflight:    inflight,
		history:     history,
		parallelism: parallelism,
		timeout:     WorkTimeout,
		log:         log.With().Str("service", "work_processor").Logger(),
	}
}

// Sweep executes every due (type, subject) pair once. Failures are logged
// and left for the next sweep; sync services persist their progress, so a
// retry never starts from scratch.
func (p *Processor) Sweep(ctx context.Context) {
	for _, wt := range p.registry.ByPriority() {
		if ctx.Err() != nil {
			return
		}
		p.sweepType(ctx, wt, false)
	}
}

// RunType executes one work type for all its current subjects, ignoring
// interval freshness. Used for manual triggers.
func (p *Processor) RunType(ctx context.Context, typeID string) error {
	wt := p.registry.Get(typeID)
	if wt == nil {
		return fmt.Errorf("unknown work type %s", typeID)
	}
	p.sweepType(ctx, wt, true)
	return nil
}

func (p *Processor) sweepType(ctx context.Context, wt *WorkType, force bool) {
	subjects := wt.FindSubjects()
	if len(subjects) == 0 {
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(p.parallelism)

	for _, subject := range subjects {
		if !force && !p.completion.IsStale(wt.ID, subject, wt.Interval) {
			continue
		}
		if !p.dependenciesMet(wt, subject) {
			continue
		}

		subject := subject
		g.Go(func() error {
			p.runOne(ctx, wt, subject)
			return nil
		})
	}

	// Individual failures are handled in runOne, never surfaced here.
	_ = g.Wait()
}

// dependenciesMet checks that every dependency has completed for the same
// subject at least once.
func (p *Processor) dependenciesMet(wt *WorkType, subject string) bool {
	for _, dep := range wt.DependsOn {
		if _, ok := p.completion.GetCompletion(dep, subject); !ok {
			return false
		}
	}
	return true
}

func (p *Processor) runOne(ctx context.Context, wt *WorkType, subject string) {
	fingerprint := Fingerprint(wt.ID, subject)
	if !p.inflight.TryAcquire(fingerprint) {
		p.log.Debug().Str("work", fingerprint).Msg("Skipping work already in flight")
		return
	}
	defer p.inflight.Release(fingerprint)

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := time.Now()
	err := wt.Execute(runCtx, subject)
	elapsed := time.Since(started)

	if err != nil {
		if p.history != nil {
			p.history.Record(wt.ID, subject, "failed", elapsed, err.Error())
		}
		p.log.Error().Err(err).
			Str("work", fingerprint).
			Dur("elapsed", elapsed).
			Msg("Work failed")
		return
	}

	p.completion.MarkCompleted(wt.ID, subject)
	if p.history != nil {
		p.history.Record(wt.ID, subject, "completed", elapsed, "")
	}
	p.log.Debug().
		Str("work", fingerprint).
		Dur("elapsed", elapsed).
		Msg("Work completed")
}
