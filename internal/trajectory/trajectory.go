// Package trajectory holds the in-memory data model of a parameter sweep: a
// named set of parameters, the results produced by runs, and an append-only
// run log. A Trajectory is safe for concurrent use; all mutation goes through
// its lock.
package trajectory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/nvandessel/paramsweep/internal/codec"
	"github.com/nvandessel/paramsweep/internal/constants"
)

// Parameter is a named sweep input. Its Value reflects the currently active
// run, not history; run history lives in the run log's params snapshots.
type Parameter struct {
	Name    string
	Value   any
	Comment string

	// Loaded is false for a skeleton entry restored by a partial load whose
	// value has not been fetched yet.
	Loaded bool
}

// Result is a named sweep output. Results accumulate across runs; per-run
// values are mirrored under by_run.<run_id>.<name>.
type Result struct {
	Name    string
	Value   any
	Comment string
	Loaded  bool
}

// RunRecord is the immutable snapshot of one completed run.
type RunRecord struct {
	ID        string
	Params    map[string]any
	Results   map[string]any
	Timestamp time.Time
}

// LeafFetcher pulls a single persisted leaf on demand. A trajectory restored
// by a partial load carries one so deferred values stay reachable.
type LeafFetcher interface {
	FetchParameter(ctx context.Context, trajectory, name string) (value any, comment string, err error)
	FetchResult(ctx context.Context, trajectory, name string) (value any, comment string, err error)
}

// Trajectory is the named container for one experiment: parameters, results,
// and the run log. Iteration order of parameters and results is insertion
// order.
type Trajectory struct {
	mu sync.RWMutex

	name        string
	params      map[string]*Parameter
	paramOrder  []string
	results     map[string]*Result
	resultOrder []string
	runs        []*RunRecord
	runIndex    map[string]*RunRecord
	runIDWidth  int
	fetcher     LeafFetcher
}

// New creates an empty trajectory with the default run-identifier width.
func New(name string) *Trajectory {
	return &Trajectory{
		name:       name,
		params:     make(map[string]*Parameter),
		results:    make(map[string]*Result),
		runIndex:   make(map[string]*RunRecord),
		runIDWidth: constants.DefaultRunIDWidth,
	}
}

// Name returns the trajectory's name.
func (t *Trajectory) Name() string { return t.name }

// AddParameter declares a new parameter. Fails with *DuplicateNameError if
// the name is already taken.
func (t *Trajectory) AddParameter(name string, value any, comment string) error {
	if name == "" {
		return fmt.Errorf("parameter name must not be empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.params[name]; ok {
		return &DuplicateNameError{Kind: "parameter", Name: name}
	}
	t.params[name] = &Parameter{Name: name, Value: copyValue(value), Comment: comment, Loaded: true}
	t.paramOrder = append(t.paramOrder, name)
	return nil
}

// AddParameterStub declares a parameter whose value has not been loaded.
// Used by partial loads; the value is fetched on demand via EnsureParameter.
func (t *Trajectory) AddParameterStub(name, comment string) error {
	if name == "" {
		return fmt.Errorf("parameter name must not be empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.params[name]; ok {
		return &DuplicateNameError{Kind: "parameter", Name: name}
	}
	t.params[name] = &Parameter{Name: name, Comment: comment}
	t.paramOrder = append(t.paramOrder, name)
	return nil
}

// AddResult stores a result value. Unlike parameters, an existing name is
// overwritten silently; per-run mirrors recorded earlier are never erased.
func (t *Trajectory) AddResult(name string, value any, comment string) error {
	if name == "" {
		return fmt.Errorf("result name must not be empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setResultLocked(name, copyValue(value), comment, true)
	return nil
}

// AddResultStub declares a result whose value has not been loaded.
func (t *Trajectory) AddResultStub(name, comment string) error {
	if name == "" {
		return fmt.Errorf("result name must not be empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setResultLocked(name, nil, comment, false)
	return nil
}

func (t *Trajectory) setResultLocked(name string, value any, comment string, loaded bool) {
	if r, ok := t.results[name]; ok {
		r.Value = value
		r.Comment = comment
		r.Loaded = loaded
		return
	}
	t.results[name] = &Result{Name: name, Value: value, Comment: comment, Loaded: loaded}
	t.resultOrder = append(t.resultOrder, name)
}

// SetParameterValues overwrites the current values of the named parameters,
// declaring any that do not exist yet. The runner calls this once per run
// with the run's assignment.
func (t *Trajectory) SetParameterValues(assignment map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(assignment))
	for name := range assignment {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v := copyValue(assignment[name])
		if p, ok := t.params[name]; ok {
			p.Value = v
			p.Loaded = true
			continue
		}
		t.params[name] = &Parameter{Name: name, Value: v, Loaded: true}
		t.paramOrder = append(t.paramOrder, name)
	}
}

// Parameter returns a copy of the named parameter.
func (t *Trajectory) Parameter(name string) (Parameter, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.params[name]
	if !ok {
		return Parameter{}, &NotFoundError{Kind: "parameter", Name: name}
	}
	out := *p
	out.Value = copyValue(p.Value)
	return out, nil
}

// ParameterValue returns the current value of the named parameter.
func (t *Trajectory) ParameterValue(name string) (any, error) {
	p, err := t.Parameter(name)
	if err != nil {
		return nil, err
	}
	return p.Value, nil
}

// Result returns a copy of the named result.
func (t *Trajectory) Result(name string) (Result, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.results[name]
	if !ok {
		return Result{}, &NotFoundError{Kind: "result", Name: name}
	}
	out := *r
	out.Value = copyValue(r.Value)
	return out, nil
}

// ResultValue returns the current value of the named result.
func (t *Trajectory) ResultValue(name string) (any, error) {
	r, err := t.Result(name)
	if err != nil {
		return nil, err
	}
	return r.Value, nil
}

// ParameterNames returns parameter names in insertion order.
func (t *Trajectory) ParameterNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.paramOrder...)
}

// ResultNames returns result names in insertion order.
func (t *Trajectory) ResultNames() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.resultOrder...)
}

// ParameterValues returns a snapshot of all current parameter values.
func (t *Trajectory) ParameterValues() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]any, len(t.params))
	for name, p := range t.params {
		out[name] = copyValue(p.Value)
	}
	return out
}

// ResultValues returns a snapshot of all current result values.
func (t *Trajectory) ResultValues() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]any, len(t.results))
	for name, r := range t.results {
		out[name] = copyValue(r.Value)
	}
	return out
}

// Parameters returns the namespace view over parameters: lookup by full
// dotted name or by explicit group traversal.
func (t *Trajectory) Parameters() *Namespace {
	return newNamespace("",
		func(name string) (any, bool) {
			t.mu.RLock()
			defer t.mu.RUnlock()
			p, ok := t.params[name]
			if !ok {
				return nil, false
			}
			return copyValue(p.Value), true
		},
		t.ParameterNames,
	)
}

// Results returns the namespace view over results.
func (t *Trajectory) Results() *Namespace {
	return newNamespace("",
		func(name string) (any, bool) {
			t.mu.RLock()
			defer t.mu.RUnlock()
			r, ok := t.results[name]
			if !ok {
				return nil, false
			}
			return copyValue(r.Value), true
		},
		t.ResultNames,
	)
}

// ListRuns returns all run identifiers in ascending order.
func (t *Trajectory) ListRuns() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.runs))
	for i, r := range t.runs {
		out[i] = r.ID
	}
	return out
}

// NumRuns returns the run count.
func (t *Trajectory) NumRuns() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.runs)
}

// RunParams returns a copy of the params snapshot recorded for a run.
func (t *Trajectory) RunParams(id string) (map[string]any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.runIndex[id]
	if !ok {
		return nil, &NotFoundError{Kind: "run", Name: id}
	}
	return copyValueMap(r.Params), nil
}

// RunResults returns a copy of the results recorded for a run.
func (t *Trajectory) RunResults(id string) (map[string]any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.runIndex[id]
	if !ok {
		return nil, &NotFoundError{Kind: "run", Name: id}
	}
	return copyValueMap(r.Results), nil
}

// RunTimestamp returns the recording time of a run.
func (t *Trajectory) RunTimestamp(id string) (time.Time, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.runIndex[id]
	if !ok {
		return time.Time{}, &NotFoundError{Kind: "run", Name: id}
	}
	return r.Timestamp, nil
}

// Runs returns copies of all run records in identifier order.
func (t *Trajectory) Runs() []RunRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]RunRecord, len(t.runs))
	for i, r := range t.runs {
		out[i] = RunRecord{
			ID:        r.ID,
			Params:    copyValueMap(r.Params),
			Results:   copyValueMap(r.Results),
			Timestamp: r.Timestamp,
		}
	}
	return out
}

// FindRuns returns the identifiers of runs whose recorded params satisfy the
// predicate, in run-identifier order. A predicate error aborts the scan and
// propagates.
func (t *Trajectory) FindRuns(pred func(params map[string]any) (bool, error)) ([]string, error) {
	runs := t.Runs()
	var out []string
	for _, r := range runs {
		ok, err := pred(r.Params)
		if err != nil {
			return nil, fmt.Errorf("find runs: predicate failed on run %s: %w", r.ID, err)
		}
		if ok {
			out = append(out, r.ID)
		}
	}
	return out, nil
}

// CollectRuns returns the value of the named result from each run that
// recorded it, in run-identifier order. Runs lacking the result are skipped,
// since not every run is guaranteed to produce every named result.
func (t *Trajectory) CollectRuns(resultName string) []any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []any
	for _, r := range t.runs {
		if v, ok := r.Results[resultName]; ok {
			out = append(out, copyValue(v))
		}
	}
	return out
}

// SetFetcher attaches the lazy-leaf fetcher used by EnsureParameter and
// EnsureResult. Storage attaches one after a partial load.
func (t *Trajectory) SetFetcher(f LeafFetcher) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetcher = f
}

// EnsureParameter returns the named parameter's value, fetching and decoding
// it through the attached fetcher if it is still a skeleton entry.
func (t *Trajectory) EnsureParameter(ctx context.Context, name string) (any, error) {
	t.mu.RLock()
	p, ok := t.params[name]
	loaded := ok && p.Loaded
	fetcher := t.fetcher
	t.mu.RUnlock()

	if loaded {
		return t.ParameterValue(name)
	}
	if fetcher == nil {
		if !ok {
			return nil, &NotFoundError{Kind: "parameter", Name: name}
		}
		return nil, fmt.Errorf("parameter %q is not loaded and no fetcher is attached", name)
	}
	value, comment, err := fetcher.FetchParameter(ctx, t.name, name)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	if p, ok := t.params[name]; ok {
		p.Value = value
		p.Comment = comment
		p.Loaded = true
	} else {
		t.params[name] = &Parameter{Name: name, Value: value, Comment: comment, Loaded: true}
		t.paramOrder = append(t.paramOrder, name)
	}
	t.mu.Unlock()
	return copyValue(value), nil
}

// EnsureResult returns the named result's value, fetching it on demand like
// EnsureParameter.
func (t *Trajectory) EnsureResult(ctx context.Context, name string) (any, error) {
	t.mu.RLock()
	r, ok := t.results[name]
	loaded := ok && r.Loaded
	fetcher := t.fetcher
	t.mu.RUnlock()

	if loaded {
		return t.ResultValue(name)
	}
	if fetcher == nil {
		if !ok {
			return nil, &NotFoundError{Kind: "result", Name: name}
		}
		return nil, fmt.Errorf("result %q is not loaded and no fetcher is attached", name)
	}
	value, comment, err := fetcher.FetchResult(ctx, t.name, name)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.setResultLocked(name, value, comment, true)
	t.mu.Unlock()
	return copyValue(value), nil
}

// Clone returns a deep copy sharing no mutable state with the original.
// The fetcher, if any, is carried over so clones of a partially loaded
// trajectory stay lazily fetchable.
func (t *Trajectory) Clone() *Trajectory {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := &Trajectory{
		name:        t.name,
		params:      make(map[string]*Parameter, len(t.params)),
		paramOrder:  append([]string(nil), t.paramOrder...),
		results:     make(map[string]*Result, len(t.results)),
		resultOrder: append([]string(nil), t.resultOrder...),
		runIndex:    make(map[string]*RunRecord, len(t.runs)),
		runIDWidth:  t.runIDWidth,
		fetcher:     t.fetcher,
	}
	for name, p := range t.params {
		cp := *p
		cp.Value = copyValue(p.Value)
		c.params[name] = &cp
	}
	for name, r := range t.results {
		cr := *r
		cr.Value = copyValue(r.Value)
		c.results[name] = &cr
	}
	c.runs = make([]*RunRecord, len(t.runs))
	for i, r := range t.runs {
		cr := &RunRecord{
			ID:        r.ID,
			Params:    copyValueMap(r.Params),
			Results:   copyValueMap(r.Results),
			Timestamp: r.Timestamp,
		}
		c.runs[i] = cr
		c.runIndex[cr.ID] = cr
	}
	return c
}

// copyValue deep-copies a value of any supported kind. Codec container types
// use their own Clone; plain maps and slices are copied recursively; scalars
// are returned as-is.
func copyValue(v any) any {
	switch x := v.(type) {
	case *codec.NDArray:
		return x.Clone()
	case *codec.Series:
		return x.Clone()
	case *codec.Table:
		return x.Clone()
	case map[string]any:
		return copyValueMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

func copyValueMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

// ValuesEqual compares two values with numeric tolerance: an int 1 equals a
// float64 1 reloaded from JSON. Codec container types compare structurally.
func ValuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch x := a.(type) {
	case *codec.NDArray:
		y, ok := b.(*codec.NDArray)
		return ok && x.Equal(y)
	case *codec.Series:
		y, ok := b.(*codec.Series)
		return ok && x.Equal(y)
	case *codec.Table:
		y, ok := b.(*codec.Table)
		return ok && x.Equal(y)
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			w, ok := y[k]
			if !ok || !ValuesEqual(v, w) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !ValuesEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// ParamsEqual reports whether two assignments name the same parameters with
// equal values. Resume and merge deduplication both rely on it.
func ParamsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		w, ok := b[k]
		if !ok || !ValuesEqual(v, w) {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
