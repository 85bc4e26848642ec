// Package orchestrator drives jobs through the extraction lifecycle:
// normalize, fan out to providers, merge, score, route. A bounded queue
// feeds a semaphore-capped worker pool; every state change lands in the
// ledger before the next step runs.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/common"
	"github.com/freightflow/extractd/internal/confidence"
	"github.com/freightflow/extractd/internal/consensus"
	"github.com/freightflow/extractd/internal/coordinate"
	"github.com/freightflow/extractd/internal/docstore"
	"github.com/freightflow/extractd/internal/metrics"
	"github.com/freightflow/extractd/internal/normalize"
	"github.com/freightflow/extractd/internal/provider"
	"github.com/freightflow/extractd/internal/repository"
	"github.com/freightflow/extractd/internal/review"
	"github.com/freightflow/extractd/internal/schema"
)

type Orchestrator struct {
	cfg     common.OrchestratorConfig
	ledger  repository.Ledger
	docs    docstore.Store
	norm    normalize.Normalizer
	coord   *coordinate.Coordinator
	reg     *provider.Registry
	schemas *schema.Registry
	weights confidence.Weights
	policy  review.Policy
	mets    *metrics.Metrics
	log     *slog.Logger

	queue chan uuid.UUID
	sem   *semaphore.Weighted
	wg    sync.WaitGroup

	cancelMu sync.Mutex
	cancels  map[uuid.UUID]context.CancelFunc
}

type Deps struct {
	Ledger      repository.Ledger
	Docs        docstore.Store
	Normalizer  normalize.Normalizer
	Coordinator *coordinate.Coordinator
	Registry    *provider.Registry
	Schemas     *schema.Registry
	Weights     confidence.Weights
	Policy      review.Policy
	Metrics     *metrics.Metrics // optional
	Logger      *slog.Logger
}

func New(cfg common.OrchestratorConfig, deps Deps) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 3 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 30 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:     cfg,
		ledger:  deps.Ledger,
		docs:    deps.Docs,
		norm:    deps.Normalizer,
		coord:   deps.Coordinator,
		reg:     deps.Registry,
		schemas: deps.Schemas,
		weights: deps.Weights,
		policy:  deps.Policy,
		mets:    deps.Metrics,
		log:     logger,
		queue:   make(chan uuid.UUID, cfg.QueueSize),
		sem:     semaphore.NewWeighted(int64(cfg.Workers)),
		cancels: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start runs the dispatch loop until ctx is cancelled, then waits for
// in-flight jobs to finish.
func (o *Orchestrator) Start(ctx context.Context) {
	o.log.Info("orchestrator.start", "workers", o.cfg.Workers, "queue", o.cfg.QueueSize)

	for {
		select {
		case <-ctx.Done():
			o.log.Info("orchestrator.draining")
			o.wg.Wait()
			o.log.Info("orchestrator.stopped")
			return

		case jobID := <-o.queue:
			if o.mets != nil {
				o.mets.QueueDepth.Set(float64(len(o.queue)))
			}
			if err := o.sem.Acquire(ctx, 1); err != nil {
				// shutting down; the job stays SUBMITTED and is picked up
				// by requeue on the next boot
				continue
			}
			o.wg.Add(1)
			go func(id uuid.UUID) {
				defer o.wg.Done()
				defer o.sem.Release(1)
				o.process(ctx, id)
			}(jobID)
		}
	}
}

// Requeue reloads non-terminal jobs after a restart. Jobs caught
// mid-flight by a crash are reset to SUBMITTED and run again from the
// start; the pipeline repeats cleanly up to provider spend.
func (o *Orchestrator) Requeue(ctx context.Context) error {
	states := []constants.JobState{
		constants.JobStateSubmitted,
		constants.JobStateNormalizing,
		constants.JobStateExtracting,
		constants.JobStateConsensing,
		constants.JobStateScoring,
		constants.JobStateRouted,
	}

	var queued int
	for _, state := range states {
		jobs, err := o.ledger.ListJobs(ctx, state, o.cfg.QueueSize)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			if job.State != constants.JobStateSubmitted {
				o.log.Warn("orchestrator.requeue.reset", "job_id", job.ID, "state", job.State)
				job.State = constants.JobStateSubmitted
				job.UpdatedAt = time.Now().UTC()
				if err := o.ledger.UpdateJob(ctx, job); err != nil {
					return err
				}
			}
			select {
			case o.queue <- job.ID:
				queued++
			default:
				return common.NewAppError("QUEUE_FULL", "requeue overflow", nil)
			}
		}
	}
	if queued > 0 {
		o.log.Info("orchestrator.requeued", "jobs", queued)
	}
	return nil
}

// Submit records a new job and enqueues it. The ref must already
// resolve in the document store. A zero deadline gets the configured
// default budget; the deadline bounds the job across all attempts.
func (o *Orchestrator) Submit(ctx context.Context, documentRef, mimeHint, schemaName string, deadline time.Time) (uuid.UUID, error) {
	if documentRef == "" {
		return uuid.Nil, common.ErrInvalidInput
	}
	if schemaName == "" {
		schemaName = "transport_order"
	}
	if _, err := o.schemas.Get(schemaName); err != nil {
		return uuid.Nil, common.WrapError(common.ErrInvalidInput, err.Error())
	}

	now := time.Now().UTC()
	if deadline.IsZero() {
		deadline = now.Add(o.cfg.JobTimeout)
	} else if !deadline.After(now) {
		return uuid.Nil, common.WrapError(common.ErrInvalidInput, "deadline already passed")
	}

	job := &repository.Job{
		ID:          uuid.New(),
		State:       constants.JobStateSubmitted,
		SchemaName:  schemaName,
		DocumentRef: documentRef,
		MIMEHint:    mimeHint,
		Deadline:    deadline,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	if err := o.ledger.CreateJob(ctx, job); err != nil {
		return uuid.Nil, err
	}

	select {
	case o.queue <- job.ID:
	default:
		return uuid.Nil, common.NewAppError("QUEUE_FULL", "job queue is full", nil)
	}
	if o.mets != nil {
		o.mets.QueueDepth.Set(float64(len(o.queue)))
	}

	o.log.Info("orchestrator.submitted", "job_id", job.ID, "schema", schemaName, "ref", documentRef)
	return job.ID, nil
}

// Cancel aborts a running job. Terminal jobs are left alone.
func (o *Orchestrator) Cancel(ctx context.Context, id uuid.UUID) error {
	job, err := o.ledger.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.State.IsTerminal() {
		return common.NewAppError("ALREADY_TERMINAL", "job already finished", common.ErrInvalidInput)
	}

	o.cancelMu.Lock()
	cancel, running := o.cancels[id]
	o.cancelMu.Unlock()
	if running {
		cancel()
		return nil
	}

	// still queued: fail it directly
	return o.fail(ctx, job, common.ErrCancelled)
}

// ReviewQueue lists manual-review reports created at or after since.
func (o *Orchestrator) ReviewQueue(ctx context.Context, since time.Time) ([]repository.StoredReport, error) {
	return o.ledger.ListReports(ctx, constants.RouteManualReview, since)
}

// JobStatus returns the ledger row for a job.
func (o *Orchestrator) JobStatus(ctx context.Context, id uuid.UUID) (*repository.Job, error) {
	return o.ledger.GetJob(ctx, id)
}

// Result returns the stored report for a completed job, ErrNotReady
// while the job is still moving.
func (o *Orchestrator) Result(ctx context.Context, id uuid.UUID) (*repository.StoredReport, error) {
	job, err := o.ledger.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !job.State.IsTerminal() {
		return nil, common.ErrNotReady
	}
	if job.State == constants.JobStateFailed {
		return nil, common.NewAppError(string(job.FailureReason), "job failed", common.ErrNotFound)
	}
	return o.ledger.GetReport(ctx, id)
}

// process walks one job through the whole lifecycle.
func (o *Orchestrator) process(parent context.Context, id uuid.UUID) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	o.cancelMu.Lock()
	o.cancels[id] = cancel
	o.cancelMu.Unlock()
	defer func() {
		o.cancelMu.Lock()
		delete(o.cancels, id)
		o.cancelMu.Unlock()
	}()

	// ledger writes must survive job cancellation
	store := context.WithoutCancel(parent)

	job, err := o.ledger.GetJob(store, id)
	if err != nil {
		o.log.Error("orchestrator.load_failed", "job_id", id, "error", err)
		return
	}
	if job.State != constants.JobStateSubmitted {
		o.log.Warn("orchestrator.skip", "job_id", id, "state", job.State)
		return
	}

	sch, err := o.schemas.Get(job.SchemaName)
	if err != nil {
		o.fail(store, job, common.WrapError(err, "resolve schema"))
		return
	}

	// NORMALIZING
	if err := o.advance(store, job, constants.JobStateNormalizing); err != nil {
		return
	}
	data, mimeHint, err := o.docs.Get(ctx, job.DocumentRef)
	if err != nil {
		o.fail(store, job, common.WrapError(err, "load document"))
		return
	}
	if job.MIMEHint != "" {
		mimeHint = job.MIMEHint
	}
	doc, err := o.norm.Normalize(ctx, data, mimeHint)
	if err != nil {
		if ctx.Err() != nil {
			o.fail(store, job, common.ErrCancelled)
			return
		}
		o.fail(store, job, err)
		return
	}

	// EXTRACTING, with retries when no provider can be called
	if err := o.advance(store, job, constants.JobStateExtracting); err != nil {
		return
	}
	results, err := o.extract(ctx, store, job, doc, sch)
	if err != nil {
		o.fail(store, job, err)
		return
	}

	// CONSENSING
	if err := o.advance(store, job, constants.JobStateConsensing); err != nil {
		return
	}
	out := consensus.Consense(results, sch, o.reg.Weight)

	// SCORING
	if err := o.advance(store, job, constants.JobStateScoring); err != nil {
		return
	}
	report := confidence.Score(job.ID, out, sch, o.weights)
	verdict := o.policy.Route(report)

	// ROUTED
	if err := o.advance(store, job, constants.JobStateRouted); err != nil {
		return
	}
	stored := repository.StoredReport{
		JobID:     job.ID,
		Report:    report,
		Verdict:   verdict,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.ledger.SaveReport(store, stored); err != nil {
		o.fail(store, job, common.WrapError(err, "save report"))
		return
	}
	job.Decision = verdict.Decision

	// COMPLETED
	job.CompletedAt = time.Now().UTC()
	if err := o.advance(store, job, constants.JobStateCompleted); err != nil {
		return
	}

	if o.mets != nil {
		o.mets.JobsTotal.WithLabelValues(string(constants.JobStateCompleted), "").Inc()
		o.mets.JobDuration.Observe(job.CompletedAt.Sub(job.SubmittedAt).Seconds())
		o.mets.ReviewDecisions.WithLabelValues(string(verdict.Decision)).Inc()
		o.mets.ConsensusAgreement.Observe(report.Overall)
	}

	o.log.Info("orchestrator.completed",
		"job_id", job.ID,
		"decision", verdict.Decision,
		"overall", report.Overall,
		"flagged_critical", report.FlaggedCritical,
		"low_redundancy", report.LowRedundancy,
	)
}

// extract runs the coordinator, retrying with backoff while no provider
// is admitted or every admitted provider fails. All results, every
// attempt included, are persisted.
func (o *Orchestrator) extract(ctx context.Context, store context.Context, job *repository.Job, doc *normalize.Document, sch *schema.Schema) ([]provider.Result, error) {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 1 {
			if err := o.advance(store, job, constants.JobStateExtracting); err != nil {
				return nil, common.ErrInternal
			}
		}
		job.Attempts = attempt
		job.UpdatedAt = time.Now().UTC()
		if err := o.ledger.UpdateJob(store, job); err != nil {
			return nil, err
		}

		var runCtx context.Context
		var cancel context.CancelFunc
		if job.Deadline.IsZero() {
			runCtx, cancel = context.WithTimeout(ctx, o.cfg.JobTimeout)
		} else {
			runCtx, cancel = context.WithDeadline(ctx, job.Deadline)
		}
		results, err := o.coord.Run(runCtx, job.ID, doc, sch)
		cancel()

		for _, res := range results {
			if err := o.ledger.SaveResult(store, res); err != nil {
				o.log.Error("orchestrator.save_result_failed", "job_id", job.ID, "error", err)
			}
			if o.mets != nil {
				o.mets.ProviderCalls.WithLabelValues(res.Provider, string(res.Outcome)).Inc()
				o.mets.ProviderLatency.WithLabelValues(res.Provider).Observe(res.Latency.Seconds())
			}
		}

		switch {
		case err == nil && usable(results):
			return results, nil
		case err == nil:
			lastErr = common.ErrNoProvidersAvailable
		case errors.Is(err, common.ErrNoProvidersAvailable):
			lastErr = err
		default:
			return nil, err
		}

		if ctx.Err() != nil {
			return nil, common.ErrCancelled
		}
		if attempt == o.cfg.MaxRetries {
			break
		}
		// the deadline bounds the whole job, retries included
		if !job.Deadline.IsZero() && !time.Now().Before(job.Deadline) {
			o.log.Warn("orchestrator.deadline_exhausted", "job_id", job.ID, "attempt", attempt)
			break
		}

		delay := backoff(attempt, o.cfg.BackoffBase, o.cfg.BackoffCap)
		o.log.Warn("orchestrator.retry",
			"job_id", job.ID,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", lastErr,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, common.ErrCancelled
		}
	}
	return nil, lastErr
}

// usable reports whether at least one provider produced fields.
func usable(results []provider.Result) bool {
	for _, r := range results {
		if !r.Failed() {
			return true
		}
	}
	return false
}

// advance validates and persists a state transition.
func (o *Orchestrator) advance(ctx context.Context, job *repository.Job, to constants.JobState) error {
	if err := ValidateTransition(job.State, to); err != nil {
		o.log.Error("orchestrator.bad_transition", "job_id", job.ID, "error", err)
		return err
	}
	from := job.State
	job.State = to
	job.UpdatedAt = time.Now().UTC()
	if err := o.ledger.UpdateJob(ctx, job); err != nil {
		o.log.Error("orchestrator.persist_failed", "job_id", job.ID, "from", from, "to", to, "error", err)
		return err
	}
	o.log.Debug("orchestrator.transition", "job_id", job.ID, "from", from, "to", to)
	return nil
}

// fail moves a job to FAILED with its mapped reason. The raw error
// never leaves the orchestrator.
func (o *Orchestrator) fail(ctx context.Context, job *repository.Job, cause error) error {
	reason := common.ReasonFor(cause)
	job.FailureReason = reason
	job.CompletedAt = time.Now().UTC()

	if err := ValidateTransition(job.State, constants.JobStateFailed); err != nil {
		o.log.Error("orchestrator.bad_transition", "job_id", job.ID, "error", err)
		return err
	}
	job.State = constants.JobStateFailed
	job.UpdatedAt = job.CompletedAt
	if err := o.ledger.UpdateJob(ctx, job); err != nil {
		o.log.Error("orchestrator.persist_failed", "job_id", job.ID, "error", err)
		return err
	}

	if o.mets != nil {
		o.mets.JobsTotal.WithLabelValues(string(constants.JobStateFailed), string(reason)).Inc()
		o.mets.JobDuration.Observe(job.CompletedAt.Sub(job.SubmittedAt).Seconds())
	}

	o.log.Warn("orchestrator.failed", "job_id", job.ID, "reason", reason, "error", cause)
	return nil
}
