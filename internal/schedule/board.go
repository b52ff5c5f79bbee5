package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"city_ingest/internal/config"
	"city_ingest/internal/models"
)

// job is one entry on the board: static spec plus mutable state.
type job struct {
	spec    JobSpec
	state   models.ScheduleState
	running bool
}

// Board holds the per-job schedule state. Transitions: Disabled <-> Idle via
// Toggle, Idle -> Running via Start, Running -> Idle via Finish (which
// recomputes the next run from the completion time, also after failed runs).
type Board struct {
	mu       sync.Mutex
	jobs     map[string]*job
	civicLoc *time.Location
	now      func() time.Time
}

// NewBoard builds the board from config. now is injected for deterministic
// tests; pass time.Now in production.
func NewBoard(jobCfgs map[string]config.JobConfig, civicLoc *time.Location, now func() time.Time) (*Board, error) {
	b := &Board{
		jobs:     make(map[string]*job),
		civicLoc: civicLoc,
		now:      now,
	}

	for kind, jc := range jobCfgs {
		spec, err := SpecFromConfig(kind, jc)
		if err != nil {
			return nil, err
		}
		j := &job{spec: spec, state: models.ScheduleState{Enabled: jc.Enabled}}
		j.state.NextRunAt = NextRun(spec, now(), jc.Enabled, nil, civicLoc)
		b.jobs[kind] = j
	}

	return b, nil
}

// Due returns the specs of enabled, idle jobs whose next run is at or before
// now.
func (b *Board) Due(now time.Time) []JobSpec {
	b.mu.Lock()
	defer b.mu.Unlock()

	var due []JobSpec
	for _, j := range b.jobs {
		if !j.state.Enabled || j.running || j.state.NextRunAt == nil {
			continue
		}
		if !j.state.NextRunAt.After(now) {
			due = append(due, j.spec)
		}
	}
	return due
}

// Start marks a job running. Returns false if the job is unknown, disabled
// or already running.
func (b *Board) Start(kind string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[kind]
	if !ok || !j.state.Enabled || j.running {
		return false
	}
	j.running = true
	return true
}

// Finish records a run's completion and advances the schedule. Failed runs
// advance too: a failure waits for the next computed slot, it does not retry
// immediately.
func (b *Board) Finish(kind string, completedAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[kind]
	if !ok {
		return
	}
	j.running = false
	t := completedAt
	j.state.LastRunAt = &t
	j.state.NextRunAt = NextRun(j.spec, completedAt, j.state.Enabled, &t, b.civicLoc)
}

// Toggle enables or disables a job, recomputing or clearing its next run.
func (b *Board) Toggle(kind string, enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	j, ok := b.jobs[kind]
	if !ok {
		return
	}
	j.state.Enabled = enabled
	j.state.NextRunAt = NextRun(j.spec, b.now(), enabled, j.state.LastRunAt, b.civicLoc)
}

// States snapshots every job's schedule state.
func (b *Board) States() map[string]models.ScheduleState {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]models.ScheduleState, len(b.jobs))
	for kind, j := range b.jobs {
		out[kind] = j.state
	}
	return out
}

// Loop polls the board and fires due jobs until ctx is cancelled. run is
// called synchronously per due job; its errors are the run summary's problem,
// not the scheduler's.
func (b *Board) Loop(ctx context.Context, tick time.Duration, run func(ctx context.Context, spec JobSpec)) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, spec := range b.Due(b.now()) {
				if !b.Start(spec.Kind) {
					continue
				}
				slog.Info("scheduled job firing", "job", spec.Kind, "sources", spec.Sources)
				run(ctx, spec)
				b.Finish(spec.Kind, b.now())
			}
		}
	}
}
