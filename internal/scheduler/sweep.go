package scheduler

import (
	"context"

	"github.com/seatwise/seatwise/internal/work"
)

// SweepJob runs one pass of the work processor. Scheduled every minute; the
// processor's interval gating decides what actually runs, and the in-flight
// registry makes an overlap with a still-running sweep harmless.
type SweepJob struct {
	processor *work.Processor
	ctx       context.Context
}

// NewSweepJob creates the sweep job. The context is the process lifetime;
// cancelling it stops a sweep that is still expanding work.
func NewSweepJob(ctx context.Context, processor *work.Processor) *SweepJob {
	return &SweepJob{processor: processor, ctx: ctx}
}

// Name returns the job name.
func (j *SweepJob) Name() string {
	return "work_sweep"
}

// Run executes one sweep.
func (j *SweepJob) Run() error {
	j.processor.Sweep(j.ctx)
	return nil
}

// RunTypeJob forces one work type through the processor on a fixed cron
// schedule, regardless of how recently it completed. The nightly analysis
// run uses this so results land at a predictable hour instead of drifting
// with process start time.
type RunTypeJob struct {
	processor *work.Processor
	typeID    string
	ctx       context.Context
}

// NewRunTypeJob creates a forced-run job for one work type.
func NewRunTypeJob(ctx context.Context, processor *work.Processor, typeID string) *RunTypeJob {
	return &RunTypeJob{processor: processor, typeID: typeID, ctx: ctx}
}

// Name returns the job name.
func (j *RunTypeJob) Name() string {
	return "work_run:" + j.typeID
}

// Run forces the work type once.
func (j *RunTypeJob) Run() error {
	return j.processor.RunType(j.ctx, j.typeID)
}
