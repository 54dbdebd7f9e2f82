package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nvandessel/paramsweep/internal/codec"
	"github.com/nvandessel/paramsweep/internal/trajectory"
)

func newSQLite(t *testing.T) *SQLiteService {
	t.Helper()
	s, err := NewSQLiteService(filepath.Join(t.TempDir(), "sweeps.db"))
	if err != nil {
		t.Fatalf("NewSQLiteService: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// services runs a subtest against both backends.
func services(t *testing.T, fn func(t *testing.T, s Service)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLite(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryService()) })
}

func buildTrajectory(t *testing.T) *trajectory.Trajectory {
	t.Helper()
	traj := trajectory.New("exp")
	if err := traj.AddParameter("x", 1.0, "first factor"); err != nil {
		t.Fatal(err)
	}
	if err := traj.AddParameter("y", 10.0, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := traj.RecordRun(
		map[string]any{"x": 1.0, "y": 10.0},
		map[string]any{"product.1_10": 10.0},
	); err != nil {
		t.Fatal(err)
	}
	return traj
}

func TestSaveLoad_Identity(t *testing.T) {
	services(t, func(t *testing.T, s Service) {
		ctx := context.Background()
		if err := s.Save(ctx, buildTrajectory(t)); err != nil {
			t.Fatalf("Save: %v", err)
		}

		got, err := s.Load(ctx, "exp")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		for name, want := range map[string]float64{"x": 1.0, "y": 10.0} {
			v, err := got.ParameterValue(name)
			if err != nil {
				t.Fatalf("parameter %s: %v", name, err)
			}
			if !trajectory.ValuesEqual(v, want) {
				t.Errorf("parameter %s = %v, want %v", name, v, want)
			}
		}
		p, err := got.Parameter("x")
		if err != nil {
			t.Fatal(err)
		}
		if p.Comment != "first factor" {
			t.Errorf("comment = %q, want %q", p.Comment, "first factor")
		}

		ids := got.ListRuns()
		if len(ids) != 1 || ids[0] != "00000" {
			t.Fatalf("run ids = %v, want [00000]", ids)
		}
		params, err := got.RunParams("00000")
		if err != nil {
			t.Fatal(err)
		}
		if !trajectory.ParamsEqual(params, map[string]any{"x": 1.0, "y": 10.0}) {
			t.Errorf("run params = %v", params)
		}
		results, err := got.RunResults("00000")
		if err != nil {
			t.Fatal(err)
		}
		if !trajectory.ValuesEqual(results["product.1_10"], 10.0) {
			t.Errorf("run results = %v", results)
		}
		// The mirror survives as a flat result too.
		mv, err := got.ResultValue(trajectory.MirrorResultName("00000", "product.1_10"))
		if err != nil {
			t.Fatalf("mirror: %v", err)
		}
		if !trajectory.ValuesEqual(mv, 10.0) {
			t.Errorf("mirror value = %v, want 10", mv)
		}
	})
}

func TestSave_ReplacesWhole(t *testing.T) {
	services(t, func(t *testing.T, s Service) {
		ctx := context.Background()
		if err := s.Save(ctx, buildTrajectory(t)); err != nil {
			t.Fatal(err)
		}

		// A smaller second version fully replaces the first.
		traj := trajectory.New("exp")
		if err := traj.AddParameter("only", 5.0, ""); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx, traj); err != nil {
			t.Fatal(err)
		}

		got, err := s.Load(ctx, "exp")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := got.ParameterValue("x"); err == nil {
			t.Error("stale parameter x survived a replacing save")
		}
		if got.NumRuns() != 0 {
			t.Errorf("stale runs survived a replacing save: %d", got.NumRuns())
		}
	})
}

func TestLoad_NotFound(t *testing.T) {
	services(t, func(t *testing.T, s Service) {
		_, err := s.Load(context.Background(), "absent")
		var nf *trajectory.NotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("Load error = %v, want *NotFoundError", err)
		}
	})
}

func TestListAndDelete(t *testing.T) {
	services(t, func(t *testing.T, s Service) {
		ctx := context.Background()
		for _, name := range []string{"b", "a"} {
			if err := s.Save(ctx, trajectory.New(name)); err != nil {
				t.Fatal(err)
			}
		}
		names, err := s.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(names) != 2 || names[0] != "a" || names[1] != "b" {
			t.Errorf("List = %v, want [a b]", names)
		}

		if err := s.Delete(ctx, "a"); err != nil {
			t.Fatal(err)
		}
		var nf *trajectory.NotFoundError
		if _, err := s.Load(ctx, "a"); !errors.As(err, &nf) {
			t.Errorf("deleted trajectory still loads: %v", err)
		}
		if err := s.Delete(ctx, "a"); !errors.As(err, &nf) {
			t.Errorf("double delete error = %v, want *NotFoundError", err)
		}
	})
}

func TestLoadPartial_FieldsAndLazyFetch(t *testing.T) {
	services(t, func(t *testing.T, s Service) {
		ctx := context.Background()
		if err := s.Save(ctx, buildTrajectory(t)); err != nil {
			t.Fatal(err)
		}

		got, err := s.LoadPartial(ctx, "exp", LoadOptions{Fields: []string{"x"}})
		if err != nil {
			t.Fatalf("LoadPartial: %v", err)
		}

		// x is materialized; y is a skeleton entry.
		xp, err := got.Parameter("x")
		if err != nil {
			t.Fatal(err)
		}
		if !xp.Loaded || !trajectory.ValuesEqual(xp.Value, 1.0) {
			t.Errorf("x = %+v, want loaded value 1", xp)
		}
		yp, err := got.Parameter("y")
		if err != nil {
			t.Fatal(err)
		}
		if yp.Loaded {
			t.Error("y should be a skeleton entry")
		}

		// The run skeleton is always present.
		if ids := got.ListRuns(); len(ids) != 1 || ids[0] != "00000" {
			t.Errorf("run skeleton = %v", ids)
		}

		// On-demand fetch of the deferred parameter still succeeds.
		v, err := got.EnsureParameter(ctx, "y")
		if err != nil {
			t.Fatalf("EnsureParameter(y): %v", err)
		}
		if !trajectory.ValuesEqual(v, 10.0) {
			t.Errorf("fetched y = %v, want 10", v)
		}

		// Deferred results fetch the same way.
		mirror := trajectory.MirrorResultName("00000", "product.1_10")
		rv, err := got.EnsureResult(ctx, mirror)
		if err != nil {
			t.Fatalf("EnsureResult(%s): %v", mirror, err)
		}
		if !trajectory.ValuesEqual(rv, 10.0) {
			t.Errorf("fetched mirror = %v, want 10", rv)
		}
	})
}

func TestLoadPartial_SkeletonOnly(t *testing.T) {
	services(t, func(t *testing.T, s Service) {
		ctx := context.Background()
		if err := s.Save(ctx, buildTrajectory(t)); err != nil {
			t.Fatal(err)
		}
		got, err := s.LoadPartial(ctx, "exp", LoadOptions{SkeletonOnly: true})
		if err != nil {
			t.Fatal(err)
		}
		for _, name := range got.ParameterNames() {
			p, err := got.Parameter(name)
			if err != nil {
				t.Fatal(err)
			}
			if p.Loaded {
				t.Errorf("parameter %s materialized in a skeleton-only load", name)
			}
		}
		if ids := got.ListRuns(); len(ids) != 1 {
			t.Errorf("run skeleton = %v", ids)
		}
		// Run results are leaf values; a skeleton-only load defers them.
		results, err := got.RunResults("00000")
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 0 {
			t.Errorf("run results materialized in a skeleton-only load: %v", results)
		}
	})
}

func TestSaveLoad_CodecKinds(t *testing.T) {
	arr, err := codec.FromFloat64s([]int{2, 2}, []float64{1, 2, 3, 4})
	if err != nil {
		t.Fatal(err)
	}
	ser, err := codec.NewSeries("s", codec.Int64, []any{"a", "b"}, []any{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := codec.NewTable(
		[]any{0, 1},
		[]string{"n", "f"},
		map[string]codec.Dtype{"n": codec.Int64, "f": codec.Float64},
		[][]any{{1, 0.5}, {2, 1.5}},
	)
	if err != nil {
		t.Fatal(err)
	}

	services(t, func(t *testing.T, s Service) {
		ctx := context.Background()
		traj := trajectory.New("typed")
		if err := traj.AddParameter("arr", arr, ""); err != nil {
			t.Fatal(err)
		}
		if err := traj.AddResult("ser", ser, ""); err != nil {
			t.Fatal(err)
		}
		if err := traj.AddResult("tbl", tbl, ""); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx, traj); err != nil {
			t.Fatalf("Save: %v", err)
		}

		got, err := s.Load(ctx, "typed")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		av, err := got.ParameterValue("arr")
		if err != nil {
			t.Fatal(err)
		}
		if !arr.Equal(av.(*codec.NDArray)) {
			t.Error("ndarray changed across save/load")
		}
		sv, err := got.ResultValue("ser")
		if err != nil {
			t.Fatal(err)
		}
		if !ser.Equal(sv.(*codec.Series)) {
			t.Error("series changed across save/load")
		}
		tv, err := got.ResultValue("tbl")
		if err != nil {
			t.Fatal(err)
		}
		if !tbl.Equal(tv.(*codec.Table)) {
			t.Error("table changed across save/load")
		}
	})
}

func TestSave_RejectsSkeletons(t *testing.T) {
	services(t, func(t *testing.T, s Service) {
		ctx := context.Background()
		if err := s.Save(ctx, buildTrajectory(t)); err != nil {
			t.Fatal(err)
		}
		partial, err := s.LoadPartial(ctx, "exp", LoadOptions{SkeletonOnly: true})
		if err != nil {
			t.Fatal(err)
		}
		var se *StorageError
		if err := s.Save(ctx, partial); !errors.As(err, &se) {
			t.Errorf("saving a skeleton-bearing trajectory: err = %v, want *StorageError", err)
		}

		// The rejected save must not have touched the stored version.
		got, err := s.Load(ctx, "exp")
		if err != nil {
			t.Fatal(err)
		}
		v, err := got.ParameterValue("x")
		if err != nil {
			t.Fatal(err)
		}
		if !trajectory.ValuesEqual(v, 1.0) {
			t.Errorf("x = %v after rejected save, want 1", v)
		}
	})
}

func TestLoadArrayRows(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()

	arr, err := codec.FromFloat64s([]int{4, 3}, []float64{
		0, 1, 2,
		10, 11, 12,
		20, 21, 22,
		30, 31, 32,
	})
	if err != nil {
		t.Fatal(err)
	}
	traj := trajectory.New("big")
	if err := traj.AddResult("matrix", arr, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, traj); err != nil {
		t.Fatal(err)
	}

	slice, err := s.LoadArrayRows(ctx, "big", "matrix", 1, 3)
	if err != nil {
		t.Fatalf("LoadArrayRows: %v", err)
	}
	if got := slice.Shape(); got[0] != 2 || got[1] != 3 {
		t.Fatalf("slice shape = %v, want [2 3]", got)
	}
	vals, err := slice.Float64s()
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{10, 11, 12, 20, 21, 22}
	for i := range want {
		if vals[i] != want[i] {
			t.Fatalf("slice values = %v, want %v", vals, want)
		}
	}

	if _, err := s.LoadArrayRows(ctx, "big", "matrix", 2, 9); err == nil {
		t.Error("out-of-range row slice should fail")
	}
	var nf *trajectory.NotFoundError
	if _, err := s.LoadArrayRows(ctx, "big", "absent", 0, 1); !errors.As(err, &nf) {
		t.Errorf("missing array error = %v, want *NotFoundError", err)
	}
}

func TestSQLite_Reopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sweeps.db")
	ctx := context.Background()

	s, err := NewSQLiteService(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, buildTrajectory(t)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := NewSQLiteService(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, err := s2.Load(ctx, "exp")
	if err != nil {
		t.Fatalf("Load after reopen: %v", err)
	}
	if got.NumRuns() != 1 {
		t.Errorf("runs after reopen = %d, want 1", got.NumRuns())
	}
}
