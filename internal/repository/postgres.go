package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/common"
	"github.com/freightflow/extractd/internal/provider"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id             UUID PRIMARY KEY,
	state          TEXT NOT NULL,
	schema_name    TEXT NOT NULL,
	document_ref   TEXT NOT NULL,
	mime_hint      TEXT NOT NULL DEFAULT '',
	deadline       TIMESTAMPTZ NOT NULL,
	attempts       INT NOT NULL DEFAULT 0,
	failure_reason TEXT NOT NULL DEFAULT '',
	decision       TEXT NOT NULL DEFAULT '',
	submitted_at   TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS jobs_state_idx ON jobs (state, submitted_at);

CREATE TABLE IF NOT EXISTS provider_results (
	id       BIGSERIAL PRIMARY KEY,
	job_id   UUID NOT NULL REFERENCES jobs (id),
	payload  JSONB NOT NULL,
	at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS provider_results_job_idx ON provider_results (job_id);

CREATE TABLE IF NOT EXISTS reports (
	job_id     UUID PRIMARY KEY REFERENCES jobs (id),
	decision   TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS reports_decision_idx ON reports (decision, created_at);
`

// Postgres is the production ledger, backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func OpenPostgres(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*Postgres, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.DialTimeout > 0 {
		pc.ConnConfig.ConnectTimeout = cfg.DialTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("repository.postgres.open", "max_conns", pc.MaxConns)
	return &Postgres{pool: pool, log: logger}, nil
}

func (p *Postgres) CreateJob(ctx context.Context, job *Job) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO jobs (id, state, schema_name, document_ref, mime_hint, deadline,
		                  attempts, failure_reason, decision, submitted_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		job.ID, job.State, job.SchemaName, job.DocumentRef, job.MIMEHint, job.Deadline,
		job.Attempts, job.FailureReason, job.Decision, job.SubmittedAt, job.UpdatedAt)
	return err
}

func (p *Postgres) UpdateJob(ctx context.Context, job *Job) error {
	var completed *time.Time
	if !job.CompletedAt.IsZero() {
		completed = &job.CompletedAt
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE jobs SET state=$2, attempts=$3, failure_reason=$4, decision=$5,
		                updated_at=$6, completed_at=$7
		WHERE id=$1`,
		job.ID, job.State, job.Attempts, job.FailureReason, job.Decision,
		job.UpdatedAt, completed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (p *Postgres) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, state, schema_name, document_ref, mime_hint, deadline, attempts,
		       failure_reason, decision, submitted_at, updated_at, completed_at
		FROM jobs WHERE id=$1`, id)
	return scanJob(row)
}

func (p *Postgres) ListJobs(ctx context.Context, state constants.JobState, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, state, schema_name, document_ref, mime_hint, deadline, attempts,
		       failure_reason, decision, submitted_at, updated_at, completed_at
		FROM jobs
		WHERE ($1 = '' OR state = $1)
		ORDER BY submitted_at
		LIMIT $2`, string(state), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var completed *time.Time
	err := row.Scan(&job.ID, &job.State, &job.SchemaName, &job.DocumentRef,
		&job.MIMEHint, &job.Deadline, &job.Attempts, &job.FailureReason, &job.Decision,
		&job.SubmittedAt, &job.UpdatedAt, &completed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if completed != nil {
		job.CompletedAt = *completed
	}
	return &job, nil
}

func (p *Postgres) SaveResult(ctx context.Context, res provider.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO provider_results (job_id, payload, at) VALUES ($1,$2,$3)`,
		res.JobID, payload, res.At)
	return err
}

func (p *Postgres) ListResults(ctx context.Context, jobID uuid.UUID) ([]provider.Result, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT payload FROM provider_results WHERE job_id=$1 ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []provider.Result
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var res provider.Result
		if err := json.Unmarshal(payload, &res); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveReport(ctx context.Context, rep StoredReport) error {
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO reports (job_id, decision, payload, created_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (job_id) DO UPDATE SET decision=$2, payload=$3, created_at=$4`,
		rep.JobID, rep.Verdict.Decision, payload, rep.CreatedAt)
	return err
}

func (p *Postgres) GetReport(ctx context.Context, jobID uuid.UUID) (*StoredReport, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx,
		`SELECT payload FROM reports WHERE job_id=$1`, jobID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rep StoredReport
	if err := json.Unmarshal(payload, &rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}

func (p *Postgres) ListReports(ctx context.Context, decision constants.RoutingDecision, since time.Time) ([]StoredReport, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT payload FROM reports
		WHERE ($1 = '' OR decision = $1) AND created_at >= $2
		ORDER BY created_at`, string(decision), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rep StoredReport
		if err := json.Unmarshal(payload, &rep); err != nil {
			return nil, fmt.Errorf("decode report: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
