package trajectory

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/paramsweep/internal/constants"
)

// mirrorPrefix is the flat-result prefix under which each run's results are
// mirrored: by_run.<run_id>.<name>.
const mirrorPrefix = constants.SegByRun + "."

// MirrorResultName returns the flat result name mirroring one run's result.
func MirrorResultName(runID, name string) string {
	return mirrorPrefix + runID + "." + name
}

// SplitMirrorResultName splits a mirror name into (runID, name). The second
// return is false when the name is not a mirror.
func SplitMirrorResultName(full string) (runID, name string, ok bool) {
	rest, found := strings.CutPrefix(full, mirrorPrefix)
	if !found {
		return "", "", false
	}
	i := strings.IndexByte(rest, '.')
	if i <= 0 || i == len(rest)-1 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// RecordRun appends a run record: the next identifier is the previous maximum
// plus one, zero-padded to the trajectory's current width. Params are stored
// as a deep-copied snapshot; results are stored verbatim and mirrored into
// the flat result namespace under by_run.<id>.<name>.
//
// If the next identifier would not fit the current width, every existing
// identifier (and its mirrors) is first re-padded to the wider form in one
// all-or-nothing step, so lexicographic order always equals numeric order.
func (t *Trajectory) RecordRun(params, results map[string]any) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := 0
	if len(t.runs) > 0 {
		last, err := strconv.Atoi(t.runs[len(t.runs)-1].ID)
		if err != nil {
			return "", fmt.Errorf("record run: malformed run id %q: %w", t.runs[len(t.runs)-1].ID, err)
		}
		next = last + 1
	}
	if w := len(strconv.Itoa(next)); w > t.runIDWidth {
		t.repadRunIDsLocked(w)
	}
	id := formatRunID(next, t.runIDWidth)
	if _, ok := t.runIndex[id]; ok {
		return "", &DuplicateNameError{Kind: "run", Name: id}
	}

	rec := &RunRecord{
		ID:        id,
		Params:    copyValueMap(params),
		Results:   copyValueMap(results),
		Timestamp: time.Now().UTC(),
	}
	t.runs = append(t.runs, rec)
	t.runIndex[id] = rec

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t.setResultLocked(MirrorResultName(id, name), copyValue(results[name]), "", true)
	}
	return id, nil
}

// RestoreRun re-attaches a previously persisted run record. Unlike RecordRun
// it keeps the given identifier and timestamp and does not mirror results
// (the mirrors are restored as ordinary results by the same load). Restoring
// an identifier wider than the current padding re-pads every existing
// identifier and mirror, so lexicographic order stays numeric. Fails with
// *DuplicateNameError if the identifier is already present.
func (t *Trajectory) RestoreRun(id string, params, results map[string]any, ts time.Time) error {
	n, err := strconv.Atoi(id)
	if err != nil || n < 0 {
		return fmt.Errorf("restore run: malformed run id %q", id)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(id) < t.runIDWidth {
		return fmt.Errorf("restore run: id %q is narrower than the current width %d", id, t.runIDWidth)
	}
	if _, ok := t.runIndex[id]; ok {
		return &DuplicateNameError{Kind: "run", Name: id}
	}
	// A wider form of an existing identifier is still the same run.
	if canon := formatRunID(n, t.runIDWidth); canon != id {
		if _, ok := t.runIndex[canon]; ok {
			return &DuplicateNameError{Kind: "run", Name: id}
		}
	}
	rec := &RunRecord{
		ID:        id,
		Params:    copyValueMap(params),
		Results:   copyValueMap(results),
		Timestamp: ts,
	}
	t.runs = append(t.runs, rec)
	t.runIndex[id] = rec
	if len(id) > t.runIDWidth {
		t.repadRunIDsLocked(len(id))
	}
	sort.Slice(t.runs, func(i, j int) bool { return t.runs[i].ID < t.runs[j].ID })
	return nil
}

// RunIDWidth returns the current zero-padding width of run identifiers.
func (t *Trajectory) RunIDWidth() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.runIDWidth
}

// SetRunIDWidth widens the run-identifier padding, re-padding all existing
// identifiers and mirrors. Narrowing is rejected.
func (t *Trajectory) SetRunIDWidth(width int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if width < t.runIDWidth {
		return fmt.Errorf("run id width %d is narrower than current width %d", width, t.runIDWidth)
	}
	if width > t.runIDWidth {
		t.repadRunIDsLocked(width)
	}
	return nil
}

// repadRunIDsLocked widens every run identifier to the new width, renaming
// run records and their by_run mirrors together. The rename set is computed
// fully before anything is touched.
func (t *Trajectory) repadRunIDsLocked(width int) {
	rename := make(map[string]string, len(t.runs)) // old id -> new id
	for _, r := range t.runs {
		n, err := strconv.Atoi(r.ID)
		if err != nil {
			continue
		}
		rename[r.ID] = formatRunID(n, width)
	}

	newIndex := make(map[string]*RunRecord, len(t.runs))
	for _, r := range t.runs {
		if id, ok := rename[r.ID]; ok {
			r.ID = id
		}
		newIndex[r.ID] = r
	}
	t.runIndex = newIndex

	for i, full := range t.resultOrder {
		oldID, rest, ok := SplitMirrorResultName(full)
		if !ok {
			continue
		}
		newID, ok := rename[oldID]
		if !ok || newID == oldID {
			continue
		}
		renamed := MirrorResultName(newID, rest)
		r := t.results[full]
		delete(t.results, full)
		r.Name = renamed
		t.results[renamed] = r
		t.resultOrder[i] = renamed
	}
	t.runIDWidth = width
}

func formatRunID(n, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}
