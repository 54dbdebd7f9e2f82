// Package mcp provides an MCP (Model Context Protocol) server for paramsweep.
package mcp

import "time"

// SweepListInput defines the input for the sweep_list tool.
type SweepListInput struct{}

// SweepListOutput defines the output for the sweep_list tool.
type SweepListOutput struct {
	Trajectories []string `json:"trajectories" jsonschema:"description=Names of persisted trajectories"`
	Count        int      `json:"count" jsonschema:"description=Number of trajectories"`
}

// SweepShowInput defines the input for the sweep_show tool.
type SweepShowInput struct {
	Trajectory string `json:"trajectory" jsonschema:"description=Name of the trajectory to inspect,required"`
}

// SweepShowOutput defines the output for the sweep_show tool.
type SweepShowOutput struct {
	Name       string          `json:"name"`
	Parameters []ParameterInfo `json:"parameters" jsonschema:"description=Declared parameters with current values"`
	Results    []string        `json:"results" jsonschema:"description=Result names (excluding per-run mirrors)"`
	RunCount   int             `json:"run_count" jsonschema:"description=Number of recorded runs"`
}

// ParameterInfo is a list view of one parameter.
type ParameterInfo struct {
	Name    string `json:"name"`
	Value   any    `json:"value"`
	Comment string `json:"comment,omitempty"`
}

// SweepRunsInput defines the input for the sweep_runs tool.
type SweepRunsInput struct {
	Trajectory string `json:"trajectory" jsonschema:"description=Name of the trajectory,required"`
}

// SweepRunsOutput defines the output for the sweep_runs tool.
type SweepRunsOutput struct {
	Runs  []RunInfo `json:"runs" jsonschema:"description=Recorded runs in identifier order"`
	Count int       `json:"count"`
}

// RunInfo is a list view of one recorded run.
type RunInfo struct {
	ID        string         `json:"id"`
	Params    map[string]any `json:"params"`
	Results   map[string]any `json:"results"`
	Timestamp time.Time      `json:"timestamp"`
}

// SweepCollectInput defines the input for the sweep_collect tool.
type SweepCollectInput struct {
	Trajectory string `json:"trajectory" jsonschema:"description=Name of the trajectory,required"`
	Result     string `json:"result" jsonschema:"description=Result name to collect across runs,required"`
}

// SweepCollectOutput defines the output for the sweep_collect tool.
type SweepCollectOutput struct {
	Values []any `json:"values" jsonschema:"description=Result values in run-identifier order; runs lacking the result are skipped"`
	Count  int   `json:"count"`
}
