package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/nvandessel/paramsweep/internal/storage"
	"github.com/nvandessel/paramsweep/internal/trajectory"
)

// newTestRootCmd creates a root command with persistent flags for testing subcommands
func newTestRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use: "paramsweep",
	}
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("store", "", "Path to the sweep store")
	return rootCmd
}

// isolateHome points HOME at a temp directory so tests never read or write
// the real ~/.paramsweep/.
func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

// seedStore creates a store at path holding one trajectory with two runs.
func seedStore(t *testing.T, path string) {
	t.Helper()
	store, err := storage.NewSQLiteService(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	traj := trajectory.New("exp")
	if err := traj.AddParameter("x", 1.0, "swept input"); err != nil {
		t.Fatal(err)
	}
	if err := traj.AddResult("summary", "ok", ""); err != nil {
		t.Fatal(err)
	}
	for _, v := range []float64{2, 4} {
		if _, err := traj.RecordRun(
			map[string]any{"x": v},
			map[string]any{"z": v * 10},
		); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Save(context.Background(), traj); err != nil {
		t.Fatal(err)
	}
}

// runCommand executes a subcommand under a test root and returns its output.
func runCommand(t *testing.T, sub *cobra.Command, args ...string) (string, error) {
	t.Helper()
	rootCmd := newTestRootCmd()
	rootCmd.AddCommand(sub)
	rootCmd.SetArgs(args)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestNewVersionCmd(t *testing.T) {
	cmd := newVersionCmd()
	if cmd.Use != "version" {
		t.Errorf("Use = %q, want %q", cmd.Use, "version")
	}

	out, err := runCommand(t, newVersionCmd(), "version", "--json")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("version --json output not JSON: %v", err)
	}
	if payload["version"] == "" {
		t.Error("version missing from JSON output")
	}
}

func TestNewInitCmd(t *testing.T) {
	cmd := newInitCmd()
	if cmd.Use != "init" {
		t.Errorf("Use = %q, want %q", cmd.Use, "init")
	}
	if cmd.Flags().Lookup("dir") == nil {
		t.Error("missing --dir flag")
	}
}

func TestInitCmdCreatesFiles(t *testing.T) {
	isolateHome(t)
	dir := filepath.Join(t.TempDir(), "sweep-home")

	if _, err := runCommand(t, newInitCmd(), "init", "--dir", dir); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); os.IsNotExist(err) {
		t.Error("config.yaml not created")
	}
	if _, err := os.Stat(filepath.Join(dir, "sweeps.db")); os.IsNotExist(err) {
		t.Error("sweeps.db not created")
	}

	// Re-running must not clobber anything.
	if _, err := runCommand(t, newInitCmd(), "init", "--dir", dir); err != nil {
		t.Fatalf("second init failed: %v", err)
	}
}

func TestListCmd(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "sweeps.db")
	seedStore(t, path)

	out, err := runCommand(t, newListCmd(), "list", "--store", path)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "exp") {
		t.Errorf("list output missing trajectory name: %s", out)
	}
	if !strings.Contains(out, "runs: 2") {
		t.Errorf("list output missing run count: %s", out)
	}
}

func TestListCmdEmpty(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "sweeps.db")

	out, err := runCommand(t, newListCmd(), "list", "--store", path)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "No trajectories") {
		t.Errorf("unexpected empty-store output: %s", out)
	}
}

func TestShowCmd(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "sweeps.db")
	seedStore(t, path)

	out, err := runCommand(t, newShowCmd(), "show", "exp", "--store", path, "--json")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}

	var payload struct {
		Name       string `json:"name"`
		Parameters []struct {
			Name string `json:"name"`
		} `json:"parameters"`
		Results []struct {
			Name string `json:"name"`
		} `json:"results"`
		RunCount int `json:"run_count"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("show --json output not JSON: %v\n%s", err, out)
	}
	if payload.Name != "exp" || payload.RunCount != 2 {
		t.Errorf("show payload = %+v", payload)
	}
	if len(payload.Parameters) != 1 || payload.Parameters[0].Name != "x" {
		t.Errorf("parameters = %+v", payload.Parameters)
	}
	// Per-run mirrors stay out of the result listing.
	if len(payload.Results) != 1 || payload.Results[0].Name != "summary" {
		t.Errorf("results = %+v", payload.Results)
	}
}

func TestShowCmdNotFound(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "sweeps.db")
	seedStore(t, path)

	_, err := runCommand(t, newShowCmd(), "show", "nope", "--store", path)
	if err == nil {
		t.Fatal("expected error for unknown trajectory")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected 'not found' error, got: %v", err)
	}
}

func TestRunsCmd(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "sweeps.db")
	seedStore(t, path)

	out, err := runCommand(t, newRunsCmd(), "runs", "exp", "--store", path, "--json")
	if err != nil {
		t.Fatalf("runs failed: %v", err)
	}

	var payload struct {
		Runs []struct {
			ID      string         `json:"id"`
			Params  map[string]any `json:"params"`
			Results map[string]any `json:"results"`
		} `json:"runs"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("runs --json output not JSON: %v\n%s", err, out)
	}
	if payload.Count != 2 {
		t.Fatalf("count = %d, want 2", payload.Count)
	}
	if payload.Runs[0].ID != "00000" || payload.Runs[1].ID != "00001" {
		t.Errorf("run ids = %s, %s", payload.Runs[0].ID, payload.Runs[1].ID)
	}
	if !trajectory.ValuesEqual(payload.Runs[0].Results["z"], 20.0) {
		t.Errorf("run 0 results = %v", payload.Runs[0].Results)
	}
}

func TestCollectCmd(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "sweeps.db")
	seedStore(t, path)

	out, err := runCommand(t, newCollectCmd(), "collect", "exp", "z", "--store", path, "--json")
	if err != nil {
		t.Fatalf("collect failed: %v", err)
	}

	var payload struct {
		Values []any `json:"values"`
		Count  int   `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("collect --json output not JSON: %v\n%s", err, out)
	}
	if payload.Count != 2 ||
		!trajectory.ValuesEqual(payload.Values[0], 20.0) ||
		!trajectory.ValuesEqual(payload.Values[1], 40.0) {
		t.Errorf("collect payload = %+v, want z values [20 40]", payload)
	}
}

func TestExportCmd(t *testing.T) {
	isolateHome(t)
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "sweeps.db")
	seedStore(t, path)

	output := filepath.Join(tmpDir, "runs.jsonl")
	if _, err := runCommand(t, newExportCmd(), "export", "exp", "--store", path, "--output", output); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("exported %d lines, want 2", len(lines))
	}
	for i, line := range lines {
		var run map[string]any
		if err := json.Unmarshal([]byte(line), &run); err != nil {
			t.Fatalf("line %d not JSON: %v", i, err)
		}
		if run["id"] == "" || run["timestamp"] == "" {
			t.Errorf("line %d missing fields: %v", i, run)
		}
	}
}

func TestNewMCPServerCmd(t *testing.T) {
	cmd := newMCPServerCmd()
	if cmd.Use != "mcp" {
		t.Errorf("Use = %q, want %q", cmd.Use, "mcp")
	}
}
