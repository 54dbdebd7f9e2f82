package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/nvandessel/paramsweep/internal/trajectory"
)

var errEmptyName = errors.New("trajectory has no name")

// MemoryService is an in-memory Service for tests and embedding. It stores
// deep clones, so a saved trajectory cannot be mutated through the caller's
// reference.
type MemoryService struct {
	mu    sync.RWMutex
	trajs map[string]*trajectory.Trajectory
}

// NewMemoryService creates an empty in-memory store.
func NewMemoryService() *MemoryService {
	return &MemoryService{trajs: make(map[string]*trajectory.Trajectory)}
}

// Save stores a deep clone under the trajectory's name, replacing any prior
// version whole. A trajectory holding unloaded skeleton entries cannot be
// saved; load it fully first.
func (m *MemoryService) Save(_ context.Context, traj *trajectory.Trajectory) error {
	if traj.Name() == "" {
		return &StorageError{Op: "save", Err: errEmptyName}
	}
	for _, pname := range traj.ParameterNames() {
		p, err := traj.Parameter(pname)
		if err != nil {
			return &StorageError{Op: "save", Err: err}
		}
		if !p.Loaded {
			return &StorageError{Op: "save",
				Err: fmt.Errorf("parameter %q is an unloaded skeleton entry", pname)}
		}
	}
	for _, rname := range traj.ResultNames() {
		r, err := traj.Result(rname)
		if err != nil {
			return &StorageError{Op: "save", Err: err}
		}
		if !r.Loaded {
			return &StorageError{Op: "save",
				Err: fmt.Errorf("result %q is an unloaded skeleton entry", rname)}
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trajs[traj.Name()] = traj.Clone()
	return nil
}

// Load returns a deep clone of the stored trajectory.
func (m *MemoryService) Load(_ context.Context, name string) (*trajectory.Trajectory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.trajs[name]
	if !ok {
		return nil, &trajectory.NotFoundError{Kind: "trajectory", Name: name}
	}
	return stored.Clone(), nil
}

// LoadPartial rebuilds the trajectory with only the selected leaves
// materialized; the rest become skeleton entries served on demand by the
// store itself.
func (m *MemoryService) LoadPartial(_ context.Context, name string, opts LoadOptions) (*trajectory.Trajectory, error) {
	m.mu.RLock()
	stored, ok := m.trajs[name]
	m.mu.RUnlock()
	if !ok {
		return nil, &trajectory.NotFoundError{Kind: "trajectory", Name: name}
	}

	traj := trajectory.New(name)
	if w := stored.RunIDWidth(); w > traj.RunIDWidth() {
		if err := traj.SetRunIDWidth(w); err != nil {
			return nil, &StorageError{Op: "load", Err: err}
		}
	}
	for _, pname := range stored.ParameterNames() {
		p, err := stored.Parameter(pname)
		if err != nil {
			return nil, &StorageError{Op: "load", Err: err}
		}
		if opts.wants(pname) {
			err = traj.AddParameter(pname, p.Value, p.Comment)
		} else {
			err = traj.AddParameterStub(pname, p.Comment)
		}
		if err != nil {
			return nil, &StorageError{Op: "load", Err: err}
		}
	}
	for _, rname := range stored.ResultNames() {
		r, err := stored.Result(rname)
		if err != nil {
			return nil, &StorageError{Op: "load", Err: err}
		}
		if opts.wants(rname) {
			err = traj.AddResult(rname, r.Value, r.Comment)
		} else {
			err = traj.AddResultStub(rname, r.Comment)
		}
		if err != nil {
			return nil, &StorageError{Op: "load", Err: err}
		}
	}
	for _, run := range stored.Runs() {
		// The run skeleton carries a result value only when its by_run
		// mirror was materialized, same as the SQLite backend.
		var results map[string]any
		for rname, v := range run.Results {
			if opts.wants(trajectory.MirrorResultName(run.ID, rname)) {
				if results == nil {
					results = make(map[string]any)
				}
				results[rname] = v
			}
		}
		if err := traj.RestoreRun(run.ID, run.Params, results, run.Timestamp); err != nil {
			return nil, &StorageError{Op: "load", Err: err}
		}
	}
	traj.SetFetcher(m)
	return traj, nil
}

// List returns stored trajectory names, sorted.
func (m *MemoryService) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.trajs))
	for name := range m.trajs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a stored trajectory.
func (m *MemoryService) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trajs[name]; !ok {
		return &trajectory.NotFoundError{Kind: "trajectory", Name: name}
	}
	delete(m.trajs, name)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryService) Close() error { return nil }

// FetchParameter serves a lazy fetch from the stored clone.
func (m *MemoryService) FetchParameter(_ context.Context, traj, name string) (any, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.trajs[traj]
	if !ok {
		return nil, "", &trajectory.NotFoundError{Kind: "trajectory", Name: traj}
	}
	p, err := stored.Parameter(name)
	if err != nil {
		return nil, "", err
	}
	return p.Value, p.Comment, nil
}

// FetchResult serves a lazy fetch from the stored clone.
func (m *MemoryService) FetchResult(_ context.Context, traj, name string) (any, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.trajs[traj]
	if !ok {
		return nil, "", &trajectory.NotFoundError{Kind: "trajectory", Name: traj}
	}
	r, err := stored.Result(name)
	if err != nil {
		return nil, "", err
	}
	return r.Value, r.Comment, nil
}

var (
	_ Service                = (*MemoryService)(nil)
	_ trajectory.LeafFetcher = (*MemoryService)(nil)
)
