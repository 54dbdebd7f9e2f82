package trajectory

import "testing"

func buildMergeSource(t *testing.T) *Trajectory {
	t.Helper()
	src := New("source")
	mustAddParam(t, src, "x", 2)
	mustAddParam(t, src, "only_source", "s")
	if err := src.AddResult("summary", "src", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := src.RecordRun(map[string]any{"x": 2}, map[string]any{"z": 4}); err != nil {
		t.Fatal(err)
	}
	if _, err := src.RecordRun(map[string]any{"x": 3}, map[string]any{"z": 6}); err != nil {
		t.Fatal(err)
	}
	return src
}

func TestMerge_AppendsRunsWithFreshIDs(t *testing.T) {
	target := New("target")
	mustAddParam(t, target, "x", 1)
	if _, err := target.RecordRun(map[string]any{"x": 1}, map[string]any{"z": 2}); err != nil {
		t.Fatal(err)
	}

	stats, err := Merge(target, buildMergeSource(t), false)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if stats.RunsAdded != 2 || stats.RunsSkipped != 0 {
		t.Errorf("stats = %+v, want 2 runs added", stats)
	}
	if stats.ParametersAdded != 1 {
		t.Errorf("parameters added = %d, want 1 (only_source)", stats.ParametersAdded)
	}

	ids := target.ListRuns()
	if len(ids) != 3 || ids[1] != "00001" || ids[2] != "00002" {
		t.Errorf("run ids after merge = %v", ids)
	}

	// Target keeps its own value on a parameter conflict.
	v, err := target.ParameterValue("x")
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Errorf("conflicting parameter x = %v, want target's 1", v)
	}

	// Appended runs were re-mirrored under their fresh ids.
	mv, err := target.ResultValue(MirrorResultName("00002", "z"))
	if err != nil {
		t.Fatalf("mirror after merge: %v", err)
	}
	if mv != 6 {
		t.Errorf("mirror value = %v, want 6", mv)
	}

	collected := target.CollectRuns("z")
	if len(collected) != 3 || collected[0] != 2 || collected[1] != 4 || collected[2] != 6 {
		t.Errorf("CollectRuns(z) after merge = %v", collected)
	}
}

func TestMerge_RemoveDuplicates(t *testing.T) {
	target := New("target")
	if _, err := target.RecordRun(map[string]any{"x": 2}, map[string]any{"z": 4}); err != nil {
		t.Fatal(err)
	}

	stats, err := Merge(target, buildMergeSource(t), true)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	// Source run {"x": 2} duplicates the existing target run.
	if stats.RunsAdded != 1 || stats.RunsSkipped != 1 {
		t.Errorf("stats = %+v, want 1 added / 1 skipped", stats)
	}
	if n := target.NumRuns(); n != 2 {
		t.Errorf("run count = %d, want 2", n)
	}
}

func TestMerge_SelfAndNil(t *testing.T) {
	traj := New("t")
	if _, err := Merge(traj, traj, false); err == nil {
		t.Error("merging a trajectory into itself should fail")
	}
	if _, err := Merge(traj, nil, false); err == nil {
		t.Error("nil source should fail")
	}
}
