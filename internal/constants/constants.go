// Package constants provides named constants used throughout the paramsweep codebase.
// This centralizes storage layout segments and sizing defaults for better
// maintainability and documentation.
package constants

// Storage layout segments. The persisted tree is path-addressed; these are the
// fixed top-level segments under a trajectory's subtree.
const (
	// SegParameters is the subtree holding parameter leaves.
	SegParameters = "parameters"

	// SegResults is the subtree holding result leaves.
	SegResults = "results"

	// SegByRun is the segment under results mirroring per-run result values.
	// A mirrored result lives at results/by_run/<run_id>/<name>.
	SegByRun = "by_run"

	// SegRuns is the subtree holding run snapshots (params + timestamp).
	SegRuns = "runs"
)

// Run identifier constants
const (
	// DefaultRunIDWidth is the zero-padding width for run identifiers.
	// Width 5 covers up to 100k runs; identifiers are re-padded wider if a
	// sweep exceeds that, so lexicographic order always matches numeric order.
	DefaultRunIDWidth = 5
)

// Filesystem defaults
const (
	// ConfigDirName is the per-user configuration directory under $HOME.
	ConfigDirName = ".paramsweep"

	// ConfigFileName is the YAML configuration file inside ConfigDirName.
	ConfigFileName = "config.yaml"

	// StoreFileName is the default SQLite store file inside ConfigDirName.
	StoreFileName = "sweeps.db"

	// RunTraceFileName is the JSONL run-trace log written at debug level.
	RunTraceFileName = "runs.jsonl"
)
