// Package store persists healing run history and generated test cases in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/selfheal/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ErrRunNotFound is returned when no run matches the requested id.
var ErrRunNotFound = errors.New("healing run not found")

// AttemptRecord is one persisted execution of a run.
type AttemptRecord struct {
	AttemptNumber  int
	ErrorType      string
	Success        bool
	Classification models.FailureClassification
	FixesApplied   []string
	Passed         int
	Failed         int
	Skipped        int
}

// RunRecord is one persisted healing run.
type RunRecord struct {
	ID             int64
	RunID          string
	StoryID        string
	Status         string
	Success        bool
	Attempts       int
	MaxAttempts    int
	HealingApplied bool
	FixesApplied   []string
	Result         models.ExecutionResult
	ErrorType      string
	Reason         string
	TargetURL      string
	ArtifactPath   string
	Evidence       models.Evidence
	StartedAt      time.Time
	FinishedAt     time.Time
	TestRailRunID  int
	History        []AttemptRecord
}

// Store manages the SQLite history database
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new Store instance and initializes the database
func NewStore(dbPath string) (*Store, error) {
	if dbPath == ":memory:" {
		return openAndInitStore(dbPath)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	return openAndInitStore(dbPath)
}

// openAndInitStore opens the database connection and initializes schema
func openAndInitStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	// busy_timeout goes first so the remaining pragmas wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}

	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return s, nil
}

// execWithRetry executes a SQL statement with exponential backoff retry on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.dbPath
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RecordOutcome stores a finished run and its attempt history in one transaction.
func (s *Store) RecordOutcome(ctx context.Context, o models.HealingOutcome) error {
	fixes, err := marshalJSON(o.FixesApplied)
	if err != nil {
		return fmt.Errorf("marshal fixes: %w", err)
	}
	evidence, err := marshalJSON(o.Evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	errorType := ""
	if o.LastClassification != nil {
		errorType = o.LastClassification.ErrorType()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO healing_runs
		(run_id, story_id, status, success, attempts, max_attempts, healing_applied, fixes_applied,
		 passed, failed, skipped, total, duration_seconds, error_type, reason, target_url, artifact_path,
		 evidence, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.StoryID, o.Status, o.Success, o.Attempts, o.MaxAttempts, o.HealingApplied, fixes,
		o.Result.Passed, o.Result.Failed, o.Result.Skipped, o.Result.Total, o.Result.DurationSeconds,
		errorType, o.Reason, o.TargetURL, o.ArtifactPath, evidence, o.StartedAt.UTC(), o.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert healing run: %w", err)
	}

	for _, a := range o.History {
		classification, err := marshalJSON(a.Classification)
		if err != nil {
			return fmt.Errorf("marshal classification: %w", err)
		}
		attemptFixes, err := marshalJSON(a.FixesApplied)
		if err != nil {
			return fmt.Errorf("marshal attempt fixes: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO healing_attempts
			(run_id, attempt_number, error_type, success, classification, fixes_applied, passed, failed, skipped)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.RunID, a.AttemptNumber, a.ErrorType, a.Success, classification, attemptFixes,
			a.Result.Passed, a.Result.Failed, a.Result.Skipped,
		)
		if err != nil {
			return fmt.Errorf("insert attempt %d: %w", a.AttemptNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit healing run: %w", err)
	}
	return nil
}

const runColumns = `id, run_id, story_id, status, success, attempts, max_attempts, healing_applied, fixes_applied,
	passed, failed, skipped, total, duration_seconds, error_type, reason, target_url, artifact_path, evidence,
	started_at, finished_at, testrail_run_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	r := &RunRecord{}
	var fixes, errorType, reason, targetURL, artifactPath, evidence sql.NullString
	var startedAt, finishedAt sql.NullTime
	var testRailRunID sql.NullInt64
	err := row.Scan(
		&r.ID, &r.RunID, &r.StoryID, &r.Status, &r.Success, &r.Attempts, &r.MaxAttempts, &r.HealingApplied, &fixes,
		&r.Result.Passed, &r.Result.Failed, &r.Result.Skipped, &r.Result.Total, &r.Result.DurationSeconds,
		&errorType, &reason, &targetURL, &artifactPath, &evidence,
		&startedAt, &finishedAt, &testRailRunID,
	)
	if err != nil {
		return nil, err
	}

	r.ErrorType = errorType.String
	r.Reason = reason.String
	r.TargetURL = targetURL.String
	r.ArtifactPath = artifactPath.String
	r.StartedAt = startedAt.Time
	r.FinishedAt = finishedAt.Time
	r.TestRailRunID = int(testRailRunID.Int64)
	if err := unmarshalJSON(fixes, &r.FixesApplied); err != nil {
		return nil, fmt.Errorf("unmarshal fixes: %w", err)
	}
	if err := unmarshalJSON(evidence, &r.Evidence); err != nil {
		return nil, fmt.Errorf("unmarshal evidence: %w", err)
	}
	return r, nil
}

// ListRuns returns runs newest first. An empty storyID lists every story.
// A limit of zero or less returns all rows.
func (s *Store) ListRuns(ctx context.Context, storyID string, limit int) ([]*RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM healing_runs`
	var args []interface{}
	if storyID != "" {
		query += ` WHERE story_id = ?`
		args = append(args, storyID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// GetRun returns one run with its attempt history.
func (s *Store) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM healing_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	history, err := s.attempts(ctx, runID)
	if err != nil {
		return nil, err
	}
	r.History = history
	return r, nil
}

// LatestRun returns the newest run for a story with its attempt history.
func (s *Store) LatestRun(ctx context.Context, storyID string) (*RunRecord, error) {
	runs, err := s.ListRuns(ctx, storyID, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no runs for %s", ErrRunNotFound, storyID)
	}
	return s.GetRun(ctx, runs[0].RunID)
}

// SetTestRailRun links a run to the TestRail run its results were pushed to.
func (s *Store) SetTestRailRun(ctx context.Context, runID string, testRailRunID int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE healing_runs SET testrail_run_id = ? WHERE run_id = ?`, testRailRunID, runID)
	if err != nil {
		return fmt.Errorf("update testrail run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func (s *Store) attempts(ctx context.Context, runID string) ([]AttemptRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT attempt_number, error_type, success, classification, fixes_applied,
		passed, failed, skipped FROM healing_attempts WHERE run_id = ? ORDER BY attempt_number ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []AttemptRecord
	for rows.Next() {
		var a AttemptRecord
		var errorType, classification, fixes sql.NullString
		if err := rows.Scan(&a.AttemptNumber, &errorType, &a.Success, &classification, &fixes,
			&a.Passed, &a.Failed, &a.Skipped); err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		a.ErrorType = errorType.String
		if err := unmarshalJSON(classification, &a.Classification); err != nil {
			return nil, fmt.Errorf("unmarshal classification: %w", err)
		}
		if err := unmarshalJSON(fixes, &a.FixesApplied); err != nil {
			return nil, fmt.Errorf("unmarshal attempt fixes: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt rows: %w", err)
	}
	return out, nil
}

// SaveTestCases replaces the stored test cases of a story.
func (s *Store) SaveTestCases(ctx context.Context, storyID string, cases []models.TestCase) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM story_test_cases WHERE story_id = ?`, storyID); err != nil {
		return fmt.Errorf("clear test cases: %w", err)
	}
	for i, tc := range cases {
		body, err := json.Marshal(tc)
		if err != nil {
			return fmt.Errorf("marshal test case %q: %w", tc.Title, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO story_test_cases (story_id, position, title, body, testrail_id)
			VALUES (?, ?, ?, ?, ?)`, storyID, i, tc.Title, string(body), tc.ID); err != nil {
			return fmt.Errorf("insert test case %q: %w", tc.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit test cases: %w", err)
	}
	return nil
}

// LoadTestCases returns a story's test cases in generation order.
func (s *Store) LoadTestCases(ctx context.Context, storyID string) ([]models.TestCase, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body, testrail_id FROM story_test_cases
		WHERE story_id = ? ORDER BY position ASC`, storyID)
	if err != nil {
		return nil, fmt.Errorf("query test cases: %w", err)
	}
	defer rows.Close()

	var cases []models.TestCase
	for rows.Next() {
		var body string
		var testRailID int
		if err := rows.Scan(&body, &testRailID); err != nil {
			return nil, fmt.Errorf("scan test case row: %w", err)
		}
		var tc models.TestCase
		if err := json.Unmarshal([]byte(body), &tc); err != nil {
			return nil, fmt.Errorf("unmarshal test case: %w", err)
		}
		if testRailID > 0 {
			tc.ID = testRailID
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test case rows: %w", err)
	}
	return cases, nil
}

func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalJSON(s sql.NullString, v interface{}) error {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), v)
}
