package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/common"
	"github.com/freightflow/extractd/internal/provider"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id             TEXT PRIMARY KEY,
	state          TEXT NOT NULL,
	schema_name    TEXT NOT NULL,
	document_ref   TEXT NOT NULL,
	mime_hint      TEXT NOT NULL DEFAULT '',
	deadline       TEXT NOT NULL,
	attempts       INTEGER NOT NULL DEFAULT 0,
	failure_reason TEXT NOT NULL DEFAULT '',
	decision       TEXT NOT NULL DEFAULT '',
	submitted_at   TEXT NOT NULL,
	updated_at     TEXT NOT NULL,
	completed_at   TEXT
);
CREATE INDEX IF NOT EXISTS jobs_state_idx ON jobs (state, submitted_at);

CREATE TABLE IF NOT EXISTS provider_results (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id  TEXT NOT NULL,
	payload TEXT NOT NULL,
	at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS provider_results_job_idx ON provider_results (job_id);

CREATE TABLE IF NOT EXISTS reports (
	job_id     TEXT PRIMARY KEY,
	decision   TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_decision_idx ON reports (decision, created_at);
`

// SQLite is the single-node ledger for small deployments and local
// runs. Times are stored as RFC 3339 strings.
type SQLite struct {
	db  *sql.DB
	log *slog.Logger
}

func OpenSQLite(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// the sqlite driver serializes writes anyway
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("repository.sqlite.open", "dsn", cfg.DSN)
	return &SQLite{db: db, log: logger}, nil
}

const sqliteTime = time.RFC3339Nano

func (s *SQLite) CreateJob(ctx context.Context, job *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, state, schema_name, document_ref, mime_hint, deadline,
		                  attempts, failure_reason, decision, submitted_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		job.ID.String(), string(job.State), job.SchemaName, job.DocumentRef, job.MIMEHint,
		job.Deadline.UTC().Format(sqliteTime),
		job.Attempts, string(job.FailureReason), string(job.Decision),
		job.SubmittedAt.UTC().Format(sqliteTime), job.UpdatedAt.UTC().Format(sqliteTime))
	return err
}

func (s *SQLite) UpdateJob(ctx context.Context, job *Job) error {
	var completed any
	if !job.CompletedAt.IsZero() {
		completed = job.CompletedAt.UTC().Format(sqliteTime)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET state=?, attempts=?, failure_reason=?, decision=?,
		                updated_at=?, completed_at=?
		WHERE id=?`,
		string(job.State), job.Attempts, string(job.FailureReason), string(job.Decision),
		job.UpdatedAt.UTC().Format(sqliteTime), completed, job.ID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (s *SQLite) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, state, schema_name, document_ref, mime_hint, deadline, attempts,
		       failure_reason, decision, submitted_at, updated_at, completed_at
		FROM jobs WHERE id=?`, id.String())
	return scanSQLiteJob(row.Scan)
}

func (s *SQLite) ListJobs(ctx context.Context, state constants.JobState, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, state, schema_name, document_ref, mime_hint, deadline, attempts,
		       failure_reason, decision, submitted_at, updated_at, completed_at
		FROM jobs
		WHERE (? = '' OR state = ?)
		ORDER BY submitted_at
		LIMIT ?`, string(state), string(state), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanSQLiteJob(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func scanSQLiteJob(scan func(...any) error) (*Job, error) {
	var (
		job                         Job
		id, state, reason, decision string
		deadline                    string
		submitted, updated          string
		completed                   sql.NullString
	)
	err := scan(&id, &state, &job.SchemaName, &job.DocumentRef, &job.MIMEHint,
		&deadline, &job.Attempts, &reason, &decision, &submitted, &updated, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	job.State = constants.JobState(state)
	job.FailureReason = constants.FailureReason(reason)
	job.Decision = constants.RoutingDecision(decision)
	if job.Deadline, err = time.Parse(sqliteTime, deadline); err != nil {
		return nil, fmt.Errorf("parse deadline: %w", err)
	}
	if job.SubmittedAt, err = time.Parse(sqliteTime, submitted); err != nil {
		return nil, fmt.Errorf("parse submitted_at: %w", err)
	}
	if job.UpdatedAt, err = time.Parse(sqliteTime, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if completed.Valid {
		if job.CompletedAt, err = time.Parse(sqliteTime, completed.String); err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
	}
	return &job, nil
}

func (s *SQLite) SaveResult(ctx context.Context, res provider.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO provider_results (job_id, payload, at) VALUES (?,?,?)`,
		res.JobID.String(), string(payload), res.At.UTC().Format(sqliteTime))
	return err
}

func (s *SQLite) ListResults(ctx context.Context, jobID uuid.UUID) ([]provider.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM provider_results WHERE job_id=? ORDER BY id`, jobID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []provider.Result
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var res provider.Result
		if err := json.Unmarshal([]byte(payload), &res); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (s *SQLite) SaveReport(ctx context.Context, rep StoredReport) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (job_id, decision, payload, created_at)
		VALUES (?,?,?,?)
		ON CONFLICT (job_id) DO UPDATE SET decision=excluded.decision,
			payload=excluded.payload, created_at=excluded.created_at`,
		rep.JobID.String(), string(rep.Verdict.Decision), string(payload),
		rep.CreatedAt.UTC().Format(sqliteTime))
	return err
}

func (s *SQLite) GetReport(ctx context.Context, jobID uuid.UUID) (*StoredReport, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM reports WHERE job_id=?`, jobID.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rep StoredReport
	if err := json.Unmarshal([]byte(payload), &rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}

func (s *SQLite) ListReports(ctx context.Context, decision constants.RoutingDecision, since time.Time) ([]StoredReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM reports
		WHERE (? = '' OR decision = ?) AND created_at >= ?
		ORDER BY created_at`,
		string(decision), string(decision), since.UTC().Format(sqliteTime))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredReport
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rep StoredReport
		if err := json.Unmarshal([]byte(payload), &rep); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error { return s.db.Close() }
