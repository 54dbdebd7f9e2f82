// Package runner orchestrates parameter sweeps: it expands an exploration
// space, invokes the user's simulation against each assignment, records runs
// on the trajectory, and persists through a storage service.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/paramsweep/internal/exploration"
	"github.com/nvandessel/paramsweep/internal/logging"
	"github.com/nvandessel/paramsweep/internal/storage"
	"github.com/nvandessel/paramsweep/internal/trajectory"
)

// SimulateFunc is the user-supplied simulation. It may read any parameter
// from the trajectory and report results either by returning a mapping or by
// writing results onto the trajectory (sequential execution only; parallel
// execution requires the returned mapping).
type SimulateFunc func(ctx context.Context, traj *trajectory.Trajectory) (map[string]any, error)

// SimulationError wraps a failure raised by the simulation, tagged with the
// assignment that provoked it.
type SimulationError struct {
	Assignment map[string]any
	Err        error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation failed for assignment %s: %v", formatAssignment(e.Assignment), e.Err)
}

func (e *SimulationError) Unwrap() error { return e.Err }

// Failure is one failed assignment in a collect-and-continue sweep.
type Failure struct {
	Assignment map[string]any
	Err        error
}

// Report summarizes a sweep: which run identifiers were recorded (in
// recording-completion order), how many assignments resume skipped, and the
// failures collected when ContinueOnError is set.
type Report struct {
	Completed []string
	Skipped   int
	Failures  []Failure
}

// Config selects the sweep policy. Every field is decided before the sweep
// starts; nothing is inferred per run.
type Config struct {
	// Resume skips assignments that already have a matching run record.
	Resume bool

	// ContinueOnError collects per-assignment failures into the report
	// instead of aborting the sweep on the first one (fail-fast default).
	ContinueOnError bool

	// PersistEachRun saves after every recorded run instead of once at the
	// end of the sweep.
	PersistEachRun bool

	// MaxWorkers bounds concurrency in RunExplorationParallel. Zero or one
	// means sequential dispatch.
	MaxWorkers int
}

// Environment ties a trajectory to a storage service and a sweep policy.
type Environment struct {
	traj  *trajectory.Trajectory
	store storage.Service
	cfg   Config
	log   *slog.Logger
	trace *logging.RunTraceLogger
}

// Option configures an Environment.
type Option func(*Environment)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Environment) { e.log = log }
}

// WithRunTrace sets the JSONL run-trace logger (nil-safe).
func WithRunTrace(trace *logging.RunTraceLogger) Option {
	return func(e *Environment) { e.trace = trace }
}

// New creates an environment. The storage service may be nil, in which case
// nothing is persisted.
func New(traj *trajectory.Trajectory, store storage.Service, cfg Config, opts ...Option) *Environment {
	e := &Environment{
		traj:  traj,
		store: store,
		cfg:   cfg,
		log:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Trajectory returns the environment's trajectory.
func (e *Environment) Trajectory() *trajectory.Trajectory { return e.traj }

// Run invokes the simulation once against the trajectory's current parameter
// values, records one run, and saves.
func (e *Environment) Run(ctx context.Context, simulate SimulateFunc) (string, error) {
	params := e.traj.ParameterValues()
	baseline := e.traj.ResultValues()

	results, err := simulate(ctx, e.traj)
	if err != nil {
		return "", &SimulationError{Assignment: params, Err: err}
	}
	if results == nil {
		results = diffResults(baseline, e.traj.ResultValues())
	}

	id, err := e.traj.RecordRun(e.traj.ParameterValues(), results)
	if err != nil {
		return "", err
	}
	e.log.Debug("run recorded", "run", id, "results", len(results))
	e.trace.Log(map[string]any{"run": id, "status": "completed"})

	if e.store != nil {
		if err := e.store.Save(ctx, e.traj); err != nil {
			return id, err
		}
	}
	return id, nil
}

// RunExploration executes every assignment of the space sequentially, in
// cartesian-product order. Persistence happens once after the sweep unless
// PersistEachRun is set. With Resume, assignments already covered by a run
// record are skipped. Fail-fast is the default; with ContinueOnError the
// sweep keeps going and the failures land in the report.
func (e *Environment) RunExploration(ctx context.Context, simulate SimulateFunc, space *exploration.Space) (Report, error) {
	var report Report
	assignments := exploration.CartesianProduct(space)
	e.log.Info("starting exploration", "assignments", len(assignments), "resume", e.cfg.Resume)

	for _, assignment := range assignments {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if e.cfg.Resume && e.hasRunFor(assignment) {
			report.Skipped++
			continue
		}

		e.traj.SetParameterValues(assignment)
		baseline := e.traj.ResultValues()

		results, err := simulate(ctx, e.traj)
		if err != nil {
			simErr := &SimulationError{Assignment: assignment, Err: err}
			e.log.Warn("run failed", "assignment", formatAssignment(assignment), "error", err)
			e.trace.Log(map[string]any{"assignment": assignment, "status": "failed", "error": err.Error()})
			if !e.cfg.ContinueOnError {
				return report, simErr
			}
			report.Failures = append(report.Failures, Failure{Assignment: assignment, Err: simErr})
			continue
		}
		if results == nil {
			results = diffResults(baseline, e.traj.ResultValues())
		}

		id, err := e.traj.RecordRun(e.traj.ParameterValues(), results)
		if err != nil {
			return report, err
		}
		report.Completed = append(report.Completed, id)
		e.log.Debug("run recorded", "run", id)
		e.trace.Log(map[string]any{"run": id, "status": "completed"})

		if e.cfg.PersistEachRun && e.store != nil {
			if err := e.store.Save(ctx, e.traj); err != nil {
				return report, err
			}
		}
	}

	if !e.cfg.PersistEachRun && e.store != nil {
		if err := e.store.Save(ctx, e.traj); err != nil {
			return report, err
		}
	}
	e.log.Info("exploration finished",
		"completed", len(report.Completed), "skipped", report.Skipped, "failed", len(report.Failures))
	return report, nil
}

// RunExplorationParallel executes independent assignments concurrently,
// bounded by MaxWorkers. The simulation runs against a private clone of the
// trajectory and MUST return its result mapping: diffing against shared
// state would race, so a nil return is rejected. Run identifiers reflect
// recording-completion order, not dispatch order.
func (e *Environment) RunExplorationParallel(ctx context.Context, simulate SimulateFunc, space *exploration.Space) (Report, error) {
	var report Report
	assignments := exploration.CartesianProduct(space)

	workers := e.cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	e.log.Info("starting parallel exploration",
		"assignments", len(assignments), "workers", workers, "resume", e.cfg.Resume)

	var mu sync.Mutex // serializes recording, report updates, and saves
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, assignment := range assignments {
		if e.cfg.Resume && e.hasRunFor(assignment) {
			report.Skipped++
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			clone := e.traj.Clone()
			clone.SetParameterValues(assignment)

			results, err := simulate(gctx, clone)
			if err == nil && results == nil {
				err = fmt.Errorf("parallel execution requires simulate to return a result mapping")
			}
			if err != nil {
				simErr := &SimulationError{Assignment: assignment, Err: err}
				e.log.Warn("run failed", "assignment", formatAssignment(assignment), "error", err)
				e.trace.Log(map[string]any{"assignment": assignment, "status": "failed", "error": err.Error()})
				if !e.cfg.ContinueOnError {
					return simErr
				}
				mu.Lock()
				report.Failures = append(report.Failures, Failure{Assignment: assignment, Err: simErr})
				mu.Unlock()
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			e.traj.SetParameterValues(assignment)
			id, err := e.traj.RecordRun(clone.ParameterValues(), results)
			if err != nil {
				return err
			}
			report.Completed = append(report.Completed, id)
			e.log.Debug("run recorded", "run", id)
			e.trace.Log(map[string]any{"run": id, "status": "completed"})
			if e.cfg.PersistEachRun && e.store != nil {
				if err := e.store.Save(gctx, e.traj); err != nil {
					return err
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if !e.cfg.PersistEachRun && e.store != nil {
		if err := e.store.Save(ctx, e.traj); err != nil {
			return report, err
		}
	}
	e.log.Info("parallel exploration finished",
		"completed", len(report.Completed), "skipped", report.Skipped, "failed", len(report.Failures))
	return report, nil
}

// hasRunFor reports whether an existing run record covers the assignment:
// every assigned name must be present in the record's params with an equal
// value.
func (e *Environment) hasRunFor(assignment map[string]any) bool {
	if len(assignment) == 0 {
		return e.traj.NumRuns() > 0
	}
	for _, run := range e.traj.Runs() {
		match := true
		for name, v := range assignment {
			have, ok := run.Params[name]
			if !ok || !trajectory.ValuesEqual(v, have) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// diffResults returns the results added or reassigned since the baseline
// snapshot. Mirrors from earlier runs are excluded; a result explicitly
// reset to its previous value does not count as changed.
func diffResults(baseline, after map[string]any) map[string]any {
	out := make(map[string]any)
	for name, v := range after {
		if _, _, isMirror := trajectory.SplitMirrorResultName(name); isMirror {
			continue
		}
		prev, had := baseline[name]
		if !had || !trajectory.ValuesEqual(prev, v) {
			out[name] = v
		}
	}
	return out
}

func formatAssignment(a map[string]any) string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%v", name, a[name])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
