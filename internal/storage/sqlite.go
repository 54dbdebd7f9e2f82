package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/paramsweep/internal/codec"
	"github.com/nvandessel/paramsweep/internal/constants"
	"github.com/nvandessel/paramsweep/internal/trajectory"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trajectories (
    name TEXT PRIMARY KEY,
    run_id_width INTEGER NOT NULL,
    saved_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS leaves (
    trajectory TEXT NOT NULL,
    path TEXT NOT NULL,
    kind TEXT NOT NULL,
    payload BLOB,
    dtype TEXT,
    shape TEXT,
    column_dtypes TEXT,
    comment TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (trajectory, path)
);

CREATE TABLE IF NOT EXISTS runs (
    trajectory TEXT NOT NULL,
    run_id TEXT NOT NULL,
    params TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    PRIMARY KEY (trajectory, run_id)
);
`

const sqliteSchemaVersion = 1

// SQLiteService implements Service on a single SQLite file. Saves are
// transactional; the store is single-writer (the connection pool is capped
// at one connection, which is how SQLite works best).
type SQLiteService struct {
	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteService opens (creating if needed) the store at dbPath.
func NewSQLiteService(dbPath string) (*SQLiteService, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, &StorageError{Op: "open", Err: fmt.Errorf("creating store directory: %w", err)}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, &StorageError{Op: "open", Err: err}
	}
	return &SQLiteService{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		sqliteSchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *SQLiteService) Close() error {
	return s.db.Close()
}

// Save persists the whole trajectory, replacing any prior version of the
// same name in one transaction. A trajectory holding unloaded skeleton
// entries cannot be saved; load it fully first.
func (s *SQLiteService) Save(ctx context.Context, traj *trajectory.Trajectory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := traj.Name()
	if name == "" {
		return &StorageError{Op: "save", Err: fmt.Errorf("trajectory has no name")}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM leaves WHERE trajectory = ?`,
		`DELETE FROM runs WHERE trajectory = ?`,
		`DELETE FROM trajectories WHERE name = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, name); err != nil {
			return &StorageError{Op: "save", Err: err}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trajectories (name, run_id_width, saved_at) VALUES (?, ?, ?)`,
		name, traj.RunIDWidth(), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return &StorageError{Op: "save", Err: err}
	}

	for _, pname := range traj.ParameterNames() {
		p, err := traj.Parameter(pname)
		if err != nil {
			return &StorageError{Op: "save", Err: err}
		}
		if !p.Loaded {
			return &StorageError{Op: "save",
				Err: fmt.Errorf("parameter %q is an unloaded skeleton entry", pname)}
		}
		if err := insertLeaf(ctx, tx, name, paramPath(pname), pname, p.Value, p.Comment); err != nil {
			return err
		}
	}
	for _, rname := range traj.ResultNames() {
		r, err := traj.Result(rname)
		if err != nil {
			return &StorageError{Op: "save", Err: err}
		}
		if !r.Loaded {
			return &StorageError{Op: "save",
				Err: fmt.Errorf("result %q is an unloaded skeleton entry", rname)}
		}
		if err := insertLeaf(ctx, tx, name, resultPath(rname), rname, r.Value, r.Comment); err != nil {
			return err
		}
	}

	for _, run := range traj.Runs() {
		snap, err := encodeSnapshot(run.Params)
		if err != nil {
			return &StorageError{Op: "save", Err: fmt.Errorf("run %s params: %w", run.ID, err)}
		}
		blob, err := json.Marshal(snap)
		if err != nil {
			return &StorageError{Op: "save", Err: fmt.Errorf("run %s params: %w", run.ID, err)}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (trajectory, run_id, params, timestamp) VALUES (?, ?, ?, ?)`,
			name, run.ID, string(blob), run.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
			return &StorageError{Op: "save", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

func insertLeaf(ctx context.Context, tx *sql.Tx, traj, path, name string, value any, comment string) error {
	if err := checkLeafName(name); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	enc, err := codec.Encode(value)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", name, err)
	}
	var shape, colDtypes any
	if len(enc.Shape) > 0 {
		b, err := json.Marshal(enc.Shape)
		if err != nil {
			return &StorageError{Op: "save", Err: err}
		}
		shape = string(b)
	}
	if len(enc.ColumnDtypes) > 0 {
		b, err := json.Marshal(enc.ColumnDtypes)
		if err != nil {
			return &StorageError{Op: "save", Err: err}
		}
		colDtypes = string(b)
	}
	var dtype any
	if enc.Dtype != "" {
		dtype = string(enc.Dtype)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO leaves (trajectory, path, kind, payload, dtype, shape, column_dtypes, comment)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		traj, path, string(enc.Kind), enc.Payload, dtype, shape, colDtypes, comment); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	return nil
}

// Load restores a full trajectory: every leaf decoded, every run record
// re-attached with its results gathered from the by_run mirror subtree.
func (s *SQLiteService) Load(ctx context.Context, name string) (*trajectory.Trajectory, error) {
	return s.load(ctx, name, LoadOptions{}, true)
}

// LoadPartial restores the run skeleton plus the leaves selected by opts;
// everything else stays lazily fetchable through the attached fetcher.
func (s *SQLiteService) LoadPartial(ctx context.Context, name string, opts LoadOptions) (*trajectory.Trajectory, error) {
	return s.load(ctx, name, opts, false)
}

func (s *SQLiteService) load(ctx context.Context, name string, opts LoadOptions, full bool) (*trajectory.Trajectory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var width int
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id_width FROM trajectories WHERE name = ?`, name).Scan(&width)
	if err == sql.ErrNoRows {
		return nil, &trajectory.NotFoundError{Kind: "trajectory", Name: name}
	}
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}

	traj := trajectory.New(name)
	if width > traj.RunIDWidth() {
		if err := traj.SetRunIDWidth(width); err != nil {
			return nil, &StorageError{Op: "load", Err: err}
		}
	}

	runResults := make(map[string]map[string]any)
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, kind, payload, dtype, shape, column_dtypes, comment
		 FROM leaves WHERE trajectory = ? ORDER BY rowid`, name)
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var path, kind, comment string
		var payload []byte
		var dtype, shape, colDtypes sql.NullString
		if err := rows.Scan(&path, &kind, &payload, &dtype, &shape, &colDtypes, &comment); err != nil {
			return nil, &StorageError{Op: "load", Err: err}
		}
		seg, leafName, err := splitLeafPath(path)
		if err != nil {
			return nil, &StorageError{Op: "load", Err: err}
		}

		materialize := full || opts.wants(leafName)
		var value any
		if materialize {
			enc, err := buildEncoded(kind, payload, dtype, shape, colDtypes)
			if err != nil {
				return nil, err
			}
			value, err = codec.Decode(enc)
			if err != nil {
				return nil, fmt.Errorf("leaf %s: %w", path, err)
			}
		}

		switch seg {
		case constants.SegParameters:
			if materialize {
				err = traj.AddParameter(leafName, value, comment)
			} else {
				err = traj.AddParameterStub(leafName, comment)
			}
		case constants.SegResults:
			if materialize {
				err = traj.AddResult(leafName, value, comment)
				if runID, rest, ok := trajectory.SplitMirrorResultName(leafName); ok {
					if runResults[runID] == nil {
						runResults[runID] = make(map[string]any)
					}
					runResults[runID][rest] = value
				}
			} else {
				err = traj.AddResultStub(leafName, comment)
			}
		default:
			err = fmt.Errorf("unknown leaf segment %q in path %s", seg, path)
		}
		if err != nil {
			return nil, &StorageError{Op: "load", Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}

	if err := s.loadRuns(ctx, traj, name, runResults); err != nil {
		return nil, err
	}
	if !full {
		traj.SetFetcher(s)
	}
	return traj, nil
}

func (s *SQLiteService) loadRuns(ctx context.Context, traj *trajectory.Trajectory, name string, runResults map[string]map[string]any) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, params, timestamp FROM runs WHERE trajectory = ? ORDER BY run_id`, name)
	if err != nil {
		return &StorageError{Op: "load", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var id, paramsBlob, tsText string
		if err := rows.Scan(&id, &paramsBlob, &tsText); err != nil {
			return &StorageError{Op: "load", Err: err}
		}
		var snap map[string]codec.Encoded
		if err := json.Unmarshal([]byte(paramsBlob), &snap); err != nil {
			return &StorageError{Op: "load", Err: fmt.Errorf("run %s params: %w", id, err)}
		}
		params, err := decodeSnapshot(snap)
		if err != nil {
			return fmt.Errorf("run %s: %w", id, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, tsText)
		if err != nil {
			return &StorageError{Op: "load", Err: fmt.Errorf("run %s timestamp: %w", id, err)}
		}
		if err := traj.RestoreRun(id, params, runResults[id], ts); err != nil {
			return &StorageError{Op: "load", Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return &StorageError{Op: "load", Err: err}
	}
	return nil
}

func buildEncoded(kind string, payload []byte, dtype, shape, colDtypes sql.NullString) (codec.Encoded, error) {
	enc := codec.Encoded{Kind: codec.Kind(kind), Payload: payload}
	if dtype.Valid {
		enc.Dtype = codec.Dtype(dtype.String)
	}
	if shape.Valid {
		if err := json.Unmarshal([]byte(shape.String), &enc.Shape); err != nil {
			return codec.Encoded{}, &StorageError{Op: "load", Err: fmt.Errorf("leaf shape: %w", err)}
		}
	}
	if colDtypes.Valid {
		if err := json.Unmarshal([]byte(colDtypes.String), &enc.ColumnDtypes); err != nil {
			return codec.Encoded{}, &StorageError{Op: "load", Err: fmt.Errorf("leaf column dtypes: %w", err)}
		}
	}
	return enc, nil
}

// List returns the names of all persisted trajectories, sorted.
func (s *SQLiteService) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM trajectories ORDER BY name`)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return names, nil
}

// Delete removes a persisted trajectory and all its leaves and runs.
func (s *SQLiteService) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM trajectories WHERE name = ?`, name)
	if err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	if n == 0 {
		return &trajectory.NotFoundError{Kind: "trajectory", Name: name}
	}
	for _, stmt := range []string{
		`DELETE FROM leaves WHERE trajectory = ?`,
		`DELETE FROM runs WHERE trajectory = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, name); err != nil {
			return &StorageError{Op: "delete", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "delete", Err: err}
	}
	return nil
}

// FetchParameter loads and decodes a single parameter leaf. Partially loaded
// trajectories call through here on demand.
func (s *SQLiteService) FetchParameter(ctx context.Context, traj, name string) (any, string, error) {
	return s.fetchLeaf(ctx, traj, paramPath(name), "parameter", name)
}

// FetchResult loads and decodes a single result leaf.
func (s *SQLiteService) FetchResult(ctx context.Context, traj, name string) (any, string, error) {
	return s.fetchLeaf(ctx, traj, resultPath(name), "result", name)
}

func (s *SQLiteService) fetchLeaf(ctx context.Context, traj, path, kindLabel, name string) (any, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var kind, comment string
	var payload []byte
	var dtype, shape, colDtypes sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, payload, dtype, shape, column_dtypes, comment
		 FROM leaves WHERE trajectory = ? AND path = ?`, traj, path).
		Scan(&kind, &payload, &dtype, &shape, &colDtypes, &comment)
	if err == sql.ErrNoRows {
		return nil, "", &trajectory.NotFoundError{Kind: kindLabel, Name: name}
	}
	if err != nil {
		return nil, "", &StorageError{Op: "fetch", Err: err}
	}
	enc, err := buildEncoded(kind, payload, dtype, shape, colDtypes)
	if err != nil {
		return nil, "", err
	}
	value, err := codec.Decode(enc)
	if err != nil {
		return nil, "", fmt.Errorf("leaf %s: %w", path, err)
	}
	return value, comment, nil
}

// LoadArrayRows fetches rows [from, to) of a persisted 2-D numeric array
// without materializing the whole buffer; the byte range is sliced inside
// SQLite. The name is tried as a result first, then as a parameter.
func (s *SQLiteService) LoadArrayRows(ctx context.Context, traj, name string, from, to int) (*codec.NDArray, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, path := range []string{resultPath(name), paramPath(name)} {
		arr, err := s.loadArrayRowsAt(ctx, traj, path, from, to)
		if err == nil {
			return arr, nil
		}
		var nf *trajectory.NotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	}
	return nil, &trajectory.NotFoundError{Kind: "array", Name: name}
}

func (s *SQLiteService) loadArrayRowsAt(ctx context.Context, traj, path string, from, to int) (*codec.NDArray, error) {
	var kind string
	var dtypeText, shapeText sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, dtype, shape FROM leaves WHERE trajectory = ? AND path = ?`, traj, path).
		Scan(&kind, &dtypeText, &shapeText)
	if err == sql.ErrNoRows {
		return nil, &trajectory.NotFoundError{Kind: "array", Name: path}
	}
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	if codec.Kind(kind) != codec.KindNDArray {
		return nil, fmt.Errorf("leaf %s is %s, not an array", path, kind)
	}
	if !dtypeText.Valid || !shapeText.Valid {
		return nil, fmt.Errorf("leaf %s is missing dtype or shape metadata", path)
	}
	dtype := codec.Dtype(dtypeText.String)
	var shapeDims []int
	if err := json.Unmarshal([]byte(shapeText.String), &shapeDims); err != nil {
		return nil, &StorageError{Op: "load", Err: fmt.Errorf("leaf shape: %w", err)}
	}
	if len(shapeDims) != 2 {
		return nil, fmt.Errorf("leaf %s has shape %v; row slicing needs a 2-D array", path, shapeDims)
	}
	if from < 0 || to < from || to > shapeDims[0] {
		return nil, fmt.Errorf("row range [%d,%d) out of bounds for %d rows", from, to, shapeDims[0])
	}

	rowSize := shapeDims[1] * dtype.Size()
	if rowSize == 0 {
		return codec.NewNDArray(dtype, []int{to - from, shapeDims[1]}, nil)
	}
	var chunk []byte
	// substr on a BLOB is byte-addressed and 1-based.
	err = s.db.QueryRowContext(ctx,
		`SELECT substr(payload, ?, ?) FROM leaves WHERE trajectory = ? AND path = ?`,
		from*rowSize+1, (to-from)*rowSize, traj, path).Scan(&chunk)
	if err != nil {
		return nil, &StorageError{Op: "load", Err: err}
	}
	return codec.NewNDArray(dtype, []int{to - from, shapeDims[1]}, chunk)
}

var (
	_ Service                = (*SQLiteService)(nil)
	_ trajectory.LeafFetcher = (*SQLiteService)(nil)
)
