// Package storage persists trajectories to a hierarchical, path-addressed
// backing store. Each parameter and result is one leaf (encoded value plus
// comment); runs are stored as params snapshots with timestamps, and per-run
// result values live under the results/by_run mirror subtree.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/nvandessel/paramsweep/internal/codec"
	"github.com/nvandessel/paramsweep/internal/constants"
	"github.com/nvandessel/paramsweep/internal/trajectory"
)

// Service is the persistence contract. Save is transactional: a failed save
// leaves any prior persisted version fully intact. Load fails with
// *trajectory.NotFoundError when no trajectory with that name exists.
type Service interface {
	Save(ctx context.Context, traj *trajectory.Trajectory) error
	Load(ctx context.Context, name string) (*trajectory.Trajectory, error)
	LoadPartial(ctx context.Context, name string, opts LoadOptions) (*trajectory.Trajectory, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
	Close() error
}

// LoadOptions selects what a partial load materializes. The run log's
// structural skeleton (identifiers, params, timestamps) is always restored;
// leaf values are decoded only for names listed in Fields. With SkeletonOnly
// set, no leaf values are decoded at all. Everything left undecoded remains
// lazily fetchable through the trajectory's attached fetcher.
type LoadOptions struct {
	Fields       []string
	SkeletonOnly bool
}

func (o LoadOptions) wants(name string) bool {
	if o.SkeletonOnly {
		return false
	}
	if len(o.Fields) == 0 {
		return true
	}
	for _, f := range o.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// StorageError reports an I/O-level persistence failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// paramPath maps a dotted parameter name to its leaf path.
func paramPath(name string) string {
	return constants.SegParameters + "/" + strings.ReplaceAll(name, ".", "/")
}

// resultPath maps a dotted result name to its leaf path. Mirror names
// (by_run.<id>.<name>) land under results/by_run/<id>/<name> naturally.
func resultPath(name string) string {
	return constants.SegResults + "/" + strings.ReplaceAll(name, ".", "/")
}

// splitLeafPath reverses paramPath/resultPath: it returns the top segment
// ("parameters" or "results") and the dotted entity name.
func splitLeafPath(path string) (seg, name string, err error) {
	i := strings.IndexByte(path, '/')
	if i <= 0 || i == len(path)-1 {
		return "", "", fmt.Errorf("malformed leaf path %q", path)
	}
	return path[:i], strings.ReplaceAll(path[i+1:], "/", "."), nil
}

// checkLeafName rejects names that cannot round-trip through the path
// mapping.
func checkLeafName(name string) error {
	if name == "" {
		return fmt.Errorf("empty leaf name")
	}
	if strings.ContainsRune(name, '/') {
		return fmt.Errorf("leaf name %q must not contain '/'", name)
	}
	return nil
}

// encodeSnapshot encodes a run's params snapshot for persistence, one
// self-describing encoded value per parameter name.
func encodeSnapshot(values map[string]any) (map[string]codec.Encoded, error) {
	out := make(map[string]codec.Encoded, len(values))
	for name, v := range values {
		e, err := codec.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %q: %w", name, err)
		}
		out[name] = e
	}
	return out, nil
}

// decodeSnapshot reverses encodeSnapshot.
func decodeSnapshot(encoded map[string]codec.Encoded) (map[string]any, error) {
	out := make(map[string]any, len(encoded))
	for name, e := range encoded {
		v, err := codec.Decode(e)
		if err != nil {
			return nil, fmt.Errorf("decoding %q: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}
