// Package repository persists jobs, provider results and confidence
// reports. The Ledger interface keeps the orchestrator independent of
// the backing store; postgres, sqlite and in-memory implementations
// ship with the service.
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/common"
	"github.com/freightflow/extractd/internal/confidence"
	"github.com/freightflow/extractd/internal/provider"
	"github.com/freightflow/extractd/internal/review"
)

// Job is the ledger row tracking one extraction request through the
// pipeline.
type Job struct {
	ID          uuid.UUID          `json:"id"`
	State       constants.JobState `json:"state"`
	SchemaName  string             `json:"schema"`
	DocumentRef string             `json:"document_ref"`
	MIMEHint    string             `json:"mime_hint,omitempty"`
	// Deadline is the hard budget for the whole job, fixed at submission.
	Deadline time.Time `json:"deadline"`
	// Attempts counts coordinator runs, first try included.
	Attempts      int                       `json:"attempts"`
	FailureReason constants.FailureReason   `json:"failure_reason,omitempty"`
	Decision      constants.RoutingDecision `json:"decision,omitempty"`
	SubmittedAt   time.Time                 `json:"submitted_at"`
	UpdatedAt     time.Time                 `json:"updated_at"`
	CompletedAt   time.Time                 `json:"completed_at,omitempty"`
}

// StoredReport couples a confidence report with its routing verdict.
type StoredReport struct {
	JobID     uuid.UUID         `json:"job_id"`
	Report    confidence.Report `json:"report"`
	Verdict   review.Verdict    `json:"verdict"`
	CreatedAt time.Time         `json:"created_at"`
}

// Ledger is the persistence contract for the extraction pipeline.
// Implementations must return common.ErrNotFound for unknown IDs.
type Ledger interface {
	CreateJob(ctx context.Context, job *Job) error
	UpdateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context, state constants.JobState, limit int) ([]*Job, error)

	SaveResult(ctx context.Context, res provider.Result) error
	ListResults(ctx context.Context, jobID uuid.UUID) ([]provider.Result, error)

	SaveReport(ctx context.Context, rep StoredReport) error
	GetReport(ctx context.Context, jobID uuid.UUID) (*StoredReport, error)
	ListReports(ctx context.Context, decision constants.RoutingDecision, since time.Time) ([]StoredReport, error)

	Close() error
}

// Open builds the ledger selected by config.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "postgres":
		return OpenPostgres(ctx, cfg, logger)
	case "sqlite":
		return OpenSQLite(ctx, cfg, logger)
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
