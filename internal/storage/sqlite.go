package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/mobarasa/roamtech-cypress/internal/model"
)

//go:embed migrations/*.sql
var fs embed.FS

var _ Storage = &SqliteStorage{}

type SqliteStorage struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewSqlite opens (and migrates) the database file, an empty filename
// creates a private in-memory database.
func NewSqlite(dbFilename string, log *slog.Logger) (*SqliteStorage, error) {
	db, err := sqlx.Connect("sqlite", connectionString(dbFilename))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	row := db.QueryRow("select sqlite_version()")

	var version string
	err = row.Scan(&version)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to retrieve sqlite version: %w", err)
	}

	log.Info("Using sqlite version: " + version)

	s := &SqliteStorage{
		db:  db,
		log: log,
	}

	if err = s.migrateDB(db); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SqliteStorage) Close() error {
	return s.db.Close()
}

func connectionString(filename string) string {
	var cs string
	var options = []string{"_pragma=busy_timeout(5000)", "_pragma=journal_mode(WAL)", "_pragma=foreign_keys(1)", "_pragma=synchronous(normal)"}

	if filename != "" {
		cs = filename
	} else {
		cs = "file:" + randomAlphanumeric(16)
		options = append(options, "mode=memory", "cache=shared")
	}

	for i, o := range options {
		if i == 0 {
			cs += "?"
		} else {
			cs += "&"
		}
		cs += o
	}

	return cs
}

func (s *SqliteStorage) migrateDB(db *sqlx.DB) error {
	d, err := iofs.New(fs, "migrations")
	if err != nil {
		return fmt.Errorf("load db migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("load migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate with instance: %w", err)
	}

	err = m.Up()

	if errors.Is(err, migrate.ErrNoChange) {
		s.log.Info("No migrations have been applied. The DB is at the latest state.")
	} else if err != nil {
		return fmt.Errorf("applying db migrations: %w", err)
	}

	return nil
}

type storageContextKey string

func (s *SqliteStorage) StartTransaction(ctx context.Context) (context.Context, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ctx, err
	}

	return context.WithValue(ctx, storageContextKey("storage.transaction"), tx), nil
}

func (s *SqliteStorage) CommitTransaction(ctx context.Context) error {
	v := ctx.Value(storageContextKey("storage.transaction"))

	if v == nil {
		return errors.New("context does not contain a transaction")
	}

	return v.(*sqlx.Tx).Commit()
}

func (s *SqliteStorage) RollbackTransaction(ctx context.Context) {
	v := ctx.Value(storageContextKey("storage.transaction"))

	if v != nil {
		err := v.(*sqlx.Tx).Rollback()
		if err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Warn("could not rollback transaction", "error", err)
		}
	}
}

func (s *SqliteStorage) getDB(ctx context.Context) commonDB {
	v := ctx.Value(storageContextKey("storage.transaction"))

	if v == nil {
		return s.db
	}

	return v.(*sqlx.Tx)
}

// functions shared by `*sqlx.Tx` and `*sqlx.Db`
type commonDB interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	NamedQuery(query string, arg interface{}) (*sqlx.Rows, error)
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
}

func suiteRunArgs(run model.SuiteRun) map[string]any {
	return map[string]any{
		"id":            run.ID,
		"suiteName":     run.SuiteName,
		"triggeredBy":   run.TriggeredBy,
		"running":       run.Running,
		"scheduledTime": timeFormat(run.Scheduled),
		"startTime":     timeFormat(run.Summary.Start),
		"endTime":       timeFormat(run.Summary.End),
		"total":         run.Summary.Total,
		"passed":        run.Summary.Passed,
		"failed":        run.Summary.Failed,
		"timedOut":      run.Summary.TimedOut,
		"skipped":       run.Summary.Skipped,
		"flaky":         run.Summary.Flaky,
	}
}

func (s *SqliteStorage) InsertSuiteRun(ctx context.Context, run model.SuiteRun) error {
	db := s.getDB(ctx)

	_, err := db.NamedExecContext(ctx, `INSERT INTO SuiteRun
	(id, suiteName, triggeredBy, running, scheduledTime, startTime, endTime, total, passed, failed, timedOut, skipped, flaky) VALUES
	(:id, :suiteName, :triggeredBy, :running, :scheduledTime, :startTime, :endTime, :total, :passed, :failed, :timedOut, :skipped, :flaky)`,
		suiteRunArgs(run))
	if err != nil {
		return fmt.Errorf("inserting suite run: %w", err)
	}

	return nil
}

func (s *SqliteStorage) UpdateSuiteRun(ctx context.Context, run model.SuiteRun) error {
	db := s.getDB(ctx)

	r, err := db.NamedExecContext(ctx, `UPDATE SuiteRun SET
	running=:running, startTime=:startTime, endTime=:endTime, total=:total, passed=:passed,
	failed=:failed, timedOut=:timedOut, skipped=:skipped, flaky=:flaky
	WHERE id=:id AND suiteName=:suiteName`,
		suiteRunArgs(run))
	if err != nil {
		return fmt.Errorf("update statement failed: %w", err)
	}

	if affected, _ := r.RowsAffected(); affected != 1 {
		return model.NotFoundError{}
	}

	return nil
}

const selectSuiteRun = `SELECT
	id, suiteName, triggeredBy, running, scheduledTime, startTime, endTime, total, passed, failed, timedOut, skipped, flaky
	FROM SuiteRun`

func (s *SqliteStorage) LoadSuiteRun(ctx context.Context, suiteName, runID string) (model.SuiteRun, error) {
	db := s.getDB(ctx)

	r, err := db.NamedQuery(selectSuiteRun+` WHERE suiteName=:suiteName AND id=:id`,
		map[string]any{
			"suiteName": suiteName,
			"id":        runID,
		})
	if err != nil {
		return model.SuiteRun{}, err
	}
	defer r.Close()

	if !r.Next() {
		return model.SuiteRun{}, model.NotFoundError{}
	}

	run, err := scanSuiteRun(r)
	if err != nil {
		return model.SuiteRun{}, err
	}

	// results are loaded with a separate query, the rows must be closed first
	r.Close()

	run.Results, err = s.LoadResults(ctx, runID)
	if err != nil {
		return model.SuiteRun{}, err
	}

	return run, nil
}

func (s *SqliteStorage) LoadSuiteRunsByName(ctx context.Context, suiteName string) ([]model.SuiteRun, error) {
	db := s.getDB(ctx)

	runs := []model.SuiteRun{}
	r, err := db.NamedQuery(selectSuiteRun+` WHERE suiteName=:suiteName ORDER BY scheduledTime DESC`,
		map[string]any{"suiteName": suiteName},
	)
	if err != nil {
		return runs, err
	}
	defer r.Close()

	for r.Next() {
		run, err := scanSuiteRun(r)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, r.Err()
}

func (s *SqliteStorage) UpsertResult(ctx context.Context, result model.Result) (err error) {
	if _, inTx := s.getDB(ctx).(*sqlx.Tx); !inTx {
		ctx, err = s.StartTransaction(ctx)
		if err != nil {
			return fmt.Errorf("starting transaction: %w", err)
		}
		defer s.RollbackTransaction(ctx)

		defer func() {
			if err == nil {
				err = s.CommitTransaction(ctx)
			}
		}()
	}

	artifacts, err := json.Marshal(result.Artifacts)
	if err != nil {
		return fmt.Errorf("unable to marshal artifacts: %w", err)
	}

	db := s.getDB(ctx)

	_, err = db.NamedExecContext(ctx, `INSERT INTO Result
	(runId, testId, suiteName, mode, finalOutcome, artifacts) VALUES
	(:runId, :testId, :suiteName, :mode, :finalOutcome, :artifacts)
	ON CONFLICT (runId, testId) DO UPDATE SET
	mode=excluded.mode, finalOutcome=excluded.finalOutcome, artifacts=excluded.artifacts`,
		map[string]any{
			"runId":        result.RunID,
			"testId":       result.TestID,
			"suiteName":    result.SuiteName,
			"mode":         result.Mode,
			"finalOutcome": result.FinalOutcome,
			"artifacts":    string(artifacts),
		})
	if err != nil {
		return fmt.Errorf("upserting result: %w", err)
	}

	_, err = db.NamedExecContext(ctx, `DELETE FROM ExecutionAttempt WHERE runId=:runId AND testId=:testId`,
		map[string]any{"runId": result.RunID, "testId": result.TestID})
	if err != nil {
		return fmt.Errorf("deleting attempts: %w", err)
	}

	for _, a := range result.Attempts {
		logs, err := compressedLogs(a.Logs)
		if err != nil {
			return fmt.Errorf("unable to compress logs: %w", err)
		}

		_, err = db.NamedExecContext(ctx, `INSERT INTO ExecutionAttempt
		(runId, testId, attempt, outcome, startTime, endTime, errorDetail, compressedLogs) VALUES
		(:runId, :testId, :attempt, :outcome, :startTime, :endTime, :errorDetail, :logs)`,
			map[string]any{
				"runId":       result.RunID,
				"testId":      result.TestID,
				"attempt":     a.Attempt,
				"outcome":     a.Outcome,
				"startTime":   timeFormat(a.Start),
				"endTime":     timeFormat(a.End),
				"errorDetail": a.ErrorDetail,
				"logs":        logs,
			})
		if err != nil {
			return fmt.Errorf("inserting attempt %d: %w", a.Attempt, err)
		}
	}

	return nil
}

func (s *SqliteStorage) LoadResults(ctx context.Context, runID string) ([]model.Result, error) {
	db := s.getDB(ctx)

	results := []model.Result{}
	byTestID := map[string]int{}

	r, err := db.QueryxContext(ctx, `SELECT runId, testId, suiteName, mode, finalOutcome, artifacts
	FROM Result WHERE runId=? ORDER BY rowid`, runID)
	if err != nil {
		return nil, err
	}

	for r.Next() {
		var result model.Result
		var artifacts string

		if err = r.Scan(&result.RunID, &result.TestID, &result.SuiteName, &result.Mode, &result.FinalOutcome, &artifacts); err != nil {
			r.Close()
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		if err = json.Unmarshal([]byte(artifacts), &result.Artifacts); err != nil {
			r.Close()
			return nil, fmt.Errorf("unmarshaling artifacts: %w", err)
		}

		result.Attempts = []model.ExecutionAttempt{}

		byTestID[result.TestID] = len(results)
		results = append(results, result)
	}
	r.Close()

	a, err := db.QueryxContext(ctx, `SELECT testId, attempt, outcome, startTime, endTime, errorDetail, compressedLogs
	FROM ExecutionAttempt WHERE runId=? ORDER BY testId, attempt`, runID)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	for a.Next() {
		attempt, err := scanAttempt(a)
		if err != nil {
			return nil, err
		}

		if i, ok := byTestID[attempt.TestID]; ok {
			results[i].Attempts = append(results[i].Attempts, attempt)
		}
	}

	return results, a.Err()
}

func scanAttempt(r *sqlx.Rows) (model.ExecutionAttempt, error) {
	a := model.ExecutionAttempt{}

	var start, end string
	var logs []byte

	err := r.Scan(&a.TestID, &a.Attempt, &a.Outcome, &start, &end, &a.ErrorDetail, &logs)
	if err != nil {
		return a, fmt.Errorf("scanning attempt: %w", err)
	}

	if a.Start, err = parseDate(start); err != nil {
		return a, fmt.Errorf("parsing start time: %w", err)
	}
	if a.End, err = parseDate(end); err != nil {
		return a, fmt.Errorf("parsing end time: %w", err)
	}

	a.Logs, err = decompressLogs(logs)

	return a, err
}

func scanSuiteRun(r *sqlx.Rows) (model.SuiteRun, error) {
	run := model.SuiteRun{}

	var scheduled, start, end string

	err := r.Scan(
		&run.ID,
		&run.SuiteName,
		&run.TriggeredBy,
		&run.Running,
		&scheduled,
		&start,
		&end,
		&run.Summary.Total,
		&run.Summary.Passed,
		&run.Summary.Failed,
		&run.Summary.TimedOut,
		&run.Summary.Skipped,
		&run.Summary.Flaky,
	)
	if err != nil {
		return model.SuiteRun{}, fmt.Errorf("scanning suite run: %w", err)
	}

	if run.Scheduled, err = parseDate(scheduled); err != nil {
		return model.SuiteRun{}, fmt.Errorf("parsing scheduled time: %w", err)
	}
	if run.Summary.Start, err = parseDate(start); err != nil {
		return model.SuiteRun{}, fmt.Errorf("parsing start time: %w", err)
	}
	if run.Summary.End, err = parseDate(end); err != nil {
		return model.SuiteRun{}, fmt.Errorf("parsing end time: %w", err)
	}

	run.Summary.RunID = run.ID
	run.Summary.SuiteName = run.SuiteName
	run.Results = []model.Result{}

	return run, nil
}
