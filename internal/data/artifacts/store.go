// # internal/data/artifacts/store.go
package artifacts

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"gqlshift/internal/rollout"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

// Store persists per-run migration artifacts: run summaries, transformation
// results and rollout state, so reviews and rollbacks survive process
// restarts.
type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("artifacts path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("artifacts path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create artifacts directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts when watch mode and the
	// rollout loop write concurrently.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite artifacts %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite artifacts %q: %w", cleanPath, err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  started_utc TEXT NOT NULL,
  finished_utc TEXT NOT NULL,
  files_scanned INTEGER NOT NULL,
  operations_found INTEGER NOT NULL,
  fragments_found INTEGER NOT NULL,
  variants_expanded INTEGER NOT NULL,
  error_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS transformations (
  run_id INTEGER NOT NULL REFERENCES runs(id),
  operation_id TEXT NOT NULL,
  file_path TEXT NOT NULL,
  confidence INTEGER NOT NULL,
  category TEXT NOT NULL,
  original TEXT NOT NULL,
  transformed TEXT NOT NULL,
  change_count INTEGER NOT NULL,
  PRIMARY KEY (run_id, operation_id)
);

CREATE TABLE IF NOT EXISTS rollout_states (
  operation_id TEXT PRIMARY KEY,
  state TEXT NOT NULL,
  percentage INTEGER NOT NULL,
  enabled INTEGER NOT NULL,
  updated_utc TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rollback_plans (
  id TEXT PRIMARY KEY,
  operation_id TEXT NOT NULL,
  strategy TEXT NOT NULL,
  step_percentage INTEGER NOT NULL,
  created_utc TEXT NOT NULL
);
`
	_, err := db.Exec(ddl)
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Run is one extraction-to-apply pass summary.
type Run struct {
	ID               int64
	Started          time.Time
	Finished         time.Time
	FilesScanned     int
	OperationsFound  int
	FragmentsFound   int
	VariantsExpanded int
	ErrorCount       int
}

func (s *Store) SaveRun(run Run) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.Started.IsZero() {
		run.Started = time.Now().UTC()
	}
	if run.Finished.IsZero() {
		run.Finished = time.Now().UTC()
	}

	var id int64
	err := s.withRetry("save run", func() error {
		res, err := s.db.Exec(`
INSERT INTO runs (started_utc, finished_utc, files_scanned, operations_found, fragments_found, variants_expanded, error_count)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.Started.UTC().Format(time.RFC3339Nano),
			run.Finished.UTC().Format(time.RFC3339Nano),
			run.FilesScanned,
			run.OperationsFound,
			run.FragmentsFound,
			run.VariantsExpanded,
			run.ErrorCount,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// TransformationRecord is what a reviewer needs to approve or reject a
// semi-automatic change later.
type TransformationRecord struct {
	OperationID string
	FilePath    string
	Confidence  int
	Category    string
	Original    string
	Transformed string
	ChangeCount int
}

func (s *Store) SaveTransformations(runID int64, records []TransformationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withRetry("save transformations", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.Prepare(`
INSERT INTO transformations (run_id, operation_id, file_path, confidence, category, original, transformed, change_count)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, operation_id) DO UPDATE SET
  file_path=excluded.file_path,
  confidence=excluded.confidence,
  category=excluded.category,
  original=excluded.original,
  transformed=excluded.transformed,
  change_count=excluded.change_count`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range records {
			if _, err := stmt.Exec(runID, r.OperationID, r.FilePath, r.Confidence, r.Category, r.Original, r.Transformed, r.ChangeCount); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

func (s *Store) LoadTransformations(runID int64) ([]TransformationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("load transformations", func() error {
		var qErr error
		rows, qErr = s.db.Query(`
SELECT operation_id, file_path, confidence, category, original, transformed, change_count
FROM transformations WHERE run_id = ? ORDER BY file_path ASC, operation_id ASC`, runID)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransformationRecord
	for rows.Next() {
		var r TransformationRecord
		if err := rows.Scan(&r.OperationID, &r.FilePath, &r.Confidence, &r.Category, &r.Original, &r.Transformed, &r.ChangeCount); err != nil {
			return nil, fmt.Errorf("scan transformation row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transformation rows: %w", err)
	}
	return out, nil
}

// LoadLatestTransformation returns the most recent record for one operation
// across all runs. The second return is false when nothing was ever recorded.
func (s *Store) LoadLatestTransformation(operationID string) (TransformationRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r TransformationRecord
	found := false
	err := s.withRetry("load latest transformation", func() error {
		row := s.db.QueryRow(`
SELECT operation_id, file_path, confidence, category, original, transformed, change_count
FROM transformations WHERE operation_id = ? ORDER BY run_id DESC LIMIT 1`, operationID)
		err := row.Scan(&r.OperationID, &r.FilePath, &r.Confidence, &r.Category, &r.Original, &r.Transformed, &r.ChangeCount)
		if err == sql.ErrNoRows {
			return nil
		}
		if err == nil {
			found = true
		}
		return err
	})
	return r, found, err
}

// RolloutSnapshot is the durable form of one operation's flag and state.
type RolloutSnapshot struct {
	OperationID string
	State       string
	Percentage  int
	Enabled     bool
	Updated     time.Time
}

func (s *Store) SaveRolloutState(snap RolloutSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Updated.IsZero() {
		snap.Updated = time.Now().UTC()
	}
	return s.withRetry("save rollout state", func() error {
		_, err := s.db.Exec(`
INSERT INTO rollout_states (operation_id, state, percentage, enabled, updated_utc)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(operation_id) DO UPDATE SET
  state=excluded.state,
  percentage=excluded.percentage,
  enabled=excluded.enabled,
  updated_utc=excluded.updated_utc`,
			snap.OperationID, snap.State, snap.Percentage, boolToInt(snap.Enabled),
			snap.Updated.UTC().Format(time.RFC3339Nano))
		return err
	})
}

func (s *Store) LoadRolloutStates() ([]RolloutSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("load rollout states", func() error {
		var qErr error
		rows, qErr = s.db.Query(`
SELECT operation_id, state, percentage, enabled, updated_utc
FROM rollout_states ORDER BY operation_id ASC`)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RolloutSnapshot
	for rows.Next() {
		var (
			snap    RolloutSnapshot
			enabled int
			tsRaw   string
		)
		if err := rows.Scan(&snap.OperationID, &snap.State, &snap.Percentage, &enabled, &tsRaw); err != nil {
			return nil, fmt.Errorf("scan rollout state row: %w", err)
		}
		snap.Enabled = enabled != 0
		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse rollout timestamp %q: %w", tsRaw, err)
		}
		snap.Updated = ts.UTC()
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollout state rows: %w", err)
	}
	return out, nil
}

func (s *Store) SaveRollbackPlan(plan rollout.RollbackPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := plan.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return s.withRetry("save rollback plan", func() error {
		_, err := s.db.Exec(`
INSERT INTO rollback_plans (id, operation_id, strategy, step_percentage, created_utc)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  operation_id=excluded.operation_id,
  strategy=excluded.strategy,
  step_percentage=excluded.step_percentage,
  created_utc=excluded.created_utc`,
			plan.ID, plan.OperationID, string(plan.Strategy), plan.StepPercentage,
			created.UTC().Format(time.RFC3339Nano))
		return err
	})
}

func (s *Store) LoadRollbackPlans(operationID string) ([]rollout.RollbackPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows *sql.Rows
	err := s.withRetry("load rollback plans", func() error {
		var qErr error
		rows, qErr = s.db.Query(`
SELECT id, operation_id, strategy, step_percentage, created_utc
FROM rollback_plans WHERE operation_id = ? ORDER BY created_utc ASC`, operationID)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rollout.RollbackPlan
	for rows.Next() {
		var (
			plan     rollout.RollbackPlan
			strategy string
			tsRaw    string
		)
		if err := rows.Scan(&plan.ID, &plan.OperationID, &strategy, &plan.StepPercentage, &tsRaw); err != nil {
			return nil, fmt.Errorf("scan rollback plan row: %w", err)
		}
		plan.Strategy = rollout.Strategy(strategy)
		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse plan timestamp %q: %w", tsRaw, err)
		}
		plan.CreatedAt = ts.UTC()
		out = append(out, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rollback plan rows: %w", err)
	}
	return out, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
