package cube

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const Schema = `
CREATE TABLE IF NOT EXISTS cube_runs (
	run_id TEXT PRIMARY KEY,
	asof DATETIME NOT NULL,
	precision INTEGER NOT NULL,
	samples INTEGER NOT NULL,
	depth INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS cube_ids (
	run_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	trade_id TEXT NOT NULL,
	PRIMARY KEY (run_id, idx)
);

CREATE TABLE IF NOT EXISTS cube_dates (
	run_id TEXT NOT NULL,
	idx INTEGER NOT NULL,
	date DATETIME NOT NULL,
	PRIMARY KEY (run_id, idx)
);

CREATE TABLE IF NOT EXISTS cube_t0 (
	run_id TEXT NOT NULL,
	trade INTEGER NOT NULL,
	depth INTEGER NOT NULL,
	value REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS cube_values (
	run_id TEXT NOT NULL,
	trade INTEGER NOT NULL,
	date INTEGER NOT NULL,
	sample INTEGER NOT NULL,
	depth INTEGER NOT NULL,
	value REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cube_values_run ON cube_values(run_id);
`

// SQLiteStore keeps cubes keyed by simulation run id.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, runID string, c NPVCube) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cube_runs (run_id, asof, precision, samples, depth, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		runID, c.Asof(), int(c.Precision()), c.Samples(), c.Depth(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("cube: insert run %s: %w", runID, err)
	}

	for i, id := range c.IDs() {
		if _, err := tx.ExecContext(ctx, `INSERT INTO cube_ids (run_id, idx, trade_id) VALUES (?, ?, ?)`, runID, i, id); err != nil {
			return err
		}
	}
	for j, d := range c.Dates() {
		if _, err := tx.ExecContext(ctx, `INSERT INTO cube_dates (run_id, idx, date) VALUES (?, ?, ?)`, runID, j, d); err != nil {
			return err
		}
	}

	t0Stmt, err := tx.PrepareContext(ctx, `INSERT INTO cube_t0 (run_id, trade, depth, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer t0Stmt.Close()

	valStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cube_values (run_id, trade, date, sample, depth, value)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer valStmt.Close()

	for i := range c.NumIDs() {
		for d := range c.Depth() {
			v, err := c.GetT0(i, d)
			if err != nil {
				return err
			}
			if _, err := t0Stmt.ExecContext(ctx, runID, i, d, v); err != nil {
				return err
			}
		}
		for j := range c.NumDates() {
			for k := range c.Samples() {
				for d := range c.Depth() {
					v, err := c.Get(i, j, k, d)
					if err != nil {
						return err
					}
					if _, err := valStmt.ExecContext(ctx, runID, i, j, k, d, v); err != nil {
						return err
					}
				}
			}
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) Load(ctx context.Context, runID string) (NPVCube, error) {
	var (
		asof           time.Time
		precision      int
		samples, depth int
	)
	err := s.db.QueryRowContext(ctx, `SELECT asof, precision, samples, depth FROM cube_runs WHERE run_id = ?`, runID).
		Scan(&asof, &precision, &samples, &depth)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("cube: run %q not found", runID)
	}
	if err != nil {
		return nil, err
	}

	ids, err := queryList(ctx, s.db, scanString, `SELECT trade_id FROM cube_ids WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	dates, err := queryList(ctx, s.db, func(rows *sql.Rows) (time.Time, error) {
		var d time.Time
		err := rows.Scan(&d)
		return d.UTC(), err
	}, `SELECT date FROM cube_dates WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}

	c, err := New(Precision(precision), asof.UTC(), ids, dates, samples, depth)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT trade, depth, value FROM cube_t0 WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var i, d int
		var v float64
		if err := rows.Scan(&i, &d, &v); err != nil {
			rows.Close()
			return nil, err
		}
		if err := c.SetT0(v, i, d); err != nil {
			rows.Close()
			return nil, err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT trade, date, sample, depth, value FROM cube_values WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var i, j, k, d int
		var v float64
		if err := rows.Scan(&i, &j, &k, &d, &v); err != nil {
			return nil, err
		}
		if err := c.Set(v, i, j, k, d); err != nil {
			return nil, err
		}
	}
	return c, rows.Err()
}

// Runs lists stored run ids, oldest first.
func (s *SQLiteStore) Runs(ctx context.Context) ([]string, error) {
	return queryList(ctx, s.db, scanString, `SELECT run_id FROM cube_runs ORDER BY created_at, run_id`)
}

func scanString(rows *sql.Rows) (string, error) {
	var s string
	err := rows.Scan(&s)
	return s, err
}

func queryList[T any](ctx context.Context, db *sql.DB, scan func(*sql.Rows) (T, error), query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
