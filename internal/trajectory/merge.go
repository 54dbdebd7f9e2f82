package trajectory

import (
	"errors"
	"fmt"
)

// MergeStats summarizes what a merge changed in the target trajectory.
type MergeStats struct {
	ParametersAdded int
	ResultsAdded    int
	RunsAdded       int
	RunsSkipped     int // duplicates detected by params equality
}

// Merge folds source into target. Parameters and results keep the target's
// value on a name conflict; source runs are appended under fresh identifiers
// (with mirrors) so identifiers stay gapless in the target. When
// removeDuplicates is set, a source run whose params snapshot equals an
// existing target run's is skipped instead of appended.
func Merge(target, source *Trajectory, removeDuplicates bool) (MergeStats, error) {
	var stats MergeStats
	if target == nil || source == nil {
		return stats, fmt.Errorf("merge: target and source must not be nil")
	}
	if target == source {
		return stats, fmt.Errorf("merge: cannot merge a trajectory into itself")
	}

	for _, name := range source.ParameterNames() {
		p, err := source.Parameter(name)
		if err != nil {
			return stats, err
		}
		if err := target.AddParameter(name, p.Value, p.Comment); err != nil {
			var dup *DuplicateNameError
			if errors.As(err, &dup) {
				continue
			}
			return stats, err
		}
		stats.ParametersAdded++
	}

	targetResults := make(map[string]bool)
	for _, name := range target.ResultNames() {
		targetResults[name] = true
	}
	for _, name := range source.ResultNames() {
		// Mirrors are re-created when the runs are appended below; copying
		// them verbatim would point at source run ids.
		if _, _, isMirror := SplitMirrorResultName(name); isMirror {
			continue
		}
		if targetResults[name] {
			continue
		}
		r, err := source.Result(name)
		if err != nil {
			return stats, err
		}
		if err := target.AddResult(name, r.Value, r.Comment); err != nil {
			return stats, err
		}
		stats.ResultsAdded++
	}

	existing := target.Runs()
	for _, run := range source.Runs() {
		if removeDuplicates {
			dup := false
			for _, have := range existing {
				if ParamsEqual(run.Params, have.Params) {
					dup = true
					break
				}
			}
			if dup {
				stats.RunsSkipped++
				continue
			}
		}
		id, err := target.RecordRun(run.Params, run.Results)
		if err != nil {
			return stats, fmt.Errorf("merge: appending run %s: %w", run.ID, err)
		}
		rec := run
		rec.ID = id
		existing = append(existing, rec)
		stats.RunsAdded++
	}
	return stats, nil
}
