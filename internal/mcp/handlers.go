package mcp

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/paramsweep/internal/trajectory"
)

// registerTools registers all paramsweep MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sweep_list",
		Description: "List the names of all persisted parameter-sweep trajectories",
	}, s.handleSweepList)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sweep_show",
		Description: "Show a trajectory's parameters, result names, and run count",
	}, s.handleSweepShow)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sweep_runs",
		Description: "List a trajectory's recorded runs with their parameter snapshots and results",
	}, s.handleSweepRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "sweep_collect",
		Description: "Collect one named result across all runs of a trajectory, in run order",
	}, s.handleSweepCollect)
}

func (s *Server) handleSweepList(ctx context.Context, req *sdk.CallToolRequest, args SweepListInput) (*sdk.CallToolResult, SweepListOutput, error) {
	names, err := s.store.List(ctx)
	if err != nil {
		return nil, SweepListOutput{}, fmt.Errorf("listing trajectories: %w", err)
	}
	return nil, SweepListOutput{Trajectories: names, Count: len(names)}, nil
}

func (s *Server) handleSweepShow(ctx context.Context, req *sdk.CallToolRequest, args SweepShowInput) (*sdk.CallToolResult, SweepShowOutput, error) {
	if args.Trajectory == "" {
		return nil, SweepShowOutput{}, fmt.Errorf("trajectory name is required")
	}
	traj, err := s.store.Load(ctx, args.Trajectory)
	if err != nil {
		return nil, SweepShowOutput{}, err
	}

	out := SweepShowOutput{
		Name:     traj.Name(),
		RunCount: traj.NumRuns(),
	}
	for _, name := range traj.ParameterNames() {
		p, err := traj.Parameter(name)
		if err != nil {
			return nil, SweepShowOutput{}, err
		}
		out.Parameters = append(out.Parameters, ParameterInfo{
			Name:    name,
			Value:   p.Value,
			Comment: p.Comment,
		})
	}
	for _, name := range traj.ResultNames() {
		// Mirrors are per-run bookkeeping; sweep_runs shows them in context.
		if _, _, isMirror := trajectory.SplitMirrorResultName(name); isMirror {
			continue
		}
		out.Results = append(out.Results, name)
	}
	return nil, out, nil
}

func (s *Server) handleSweepRuns(ctx context.Context, req *sdk.CallToolRequest, args SweepRunsInput) (*sdk.CallToolResult, SweepRunsOutput, error) {
	if args.Trajectory == "" {
		return nil, SweepRunsOutput{}, fmt.Errorf("trajectory name is required")
	}
	traj, err := s.store.Load(ctx, args.Trajectory)
	if err != nil {
		return nil, SweepRunsOutput{}, err
	}

	var out SweepRunsOutput
	for _, run := range traj.Runs() {
		out.Runs = append(out.Runs, RunInfo{
			ID:        run.ID,
			Params:    run.Params,
			Results:   run.Results,
			Timestamp: run.Timestamp,
		})
	}
	out.Count = len(out.Runs)
	return nil, out, nil
}

func (s *Server) handleSweepCollect(ctx context.Context, req *sdk.CallToolRequest, args SweepCollectInput) (*sdk.CallToolResult, SweepCollectOutput, error) {
	if args.Trajectory == "" || args.Result == "" {
		return nil, SweepCollectOutput{}, fmt.Errorf("trajectory and result names are required")
	}
	traj, err := s.store.Load(ctx, args.Trajectory)
	if err != nil {
		return nil, SweepCollectOutput{}, err
	}
	values := traj.CollectRuns(args.Result)
	return nil, SweepCollectOutput{Values: values, Count: len(values)}, nil
}
