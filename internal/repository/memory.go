package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freightflow/extractd/constants"
	"github.com/freightflow/extractd/internal/common"
	"github.com/freightflow/extractd/internal/provider"
)

// Memory is the in-process ledger used by tests and the default dev
// configuration.
type Memory struct {
	mu      sync.RWMutex
	jobs    map[uuid.UUID]Job
	results map[uuid.UUID][]provider.Result
	reports map[uuid.UUID]StoredReport
}

func NewMemory() *Memory {
	return &Memory{
		jobs:    make(map[uuid.UUID]Job),
		results: make(map[uuid.UUID][]provider.Result),
		reports: make(map[uuid.UUID]StoredReport),
	}
}

func (m *Memory) CreateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.jobs[job.ID]; dup {
		return common.NewAppError("DUPLICATE_JOB", "job already exists", nil)
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *Memory) UpdateJob(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return common.ErrNotFound
	}
	m.jobs[job.ID] = *job
	return nil
}

func (m *Memory) GetJob(_ context.Context, id uuid.UUID) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := job
	return &out, nil
}

func (m *Memory) ListJobs(_ context.Context, state constants.JobState, limit int) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Job
	for _, job := range m.jobs {
		if state != "" && job.State != state {
			continue
		}
		j := job
		out = append(out, &j)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) SaveResult(_ context.Context, res provider.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[res.JobID] = append(m.results[res.JobID], res)
	return nil
}

func (m *Memory) ListResults(_ context.Context, jobID uuid.UUID) ([]provider.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]provider.Result, len(m.results[jobID]))
	copy(out, m.results[jobID])
	return out, nil
}

func (m *Memory) SaveReport(_ context.Context, rep StoredReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[rep.JobID] = rep
	return nil
}

func (m *Memory) GetReport(_ context.Context, jobID uuid.UUID) (*StoredReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rep, ok := m.reports[jobID]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := rep
	return &out, nil
}

func (m *Memory) ListReports(_ context.Context, decision constants.RoutingDecision, since time.Time) ([]StoredReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []StoredReport
	for _, rep := range m.reports {
		if decision != "" && rep.Verdict.Decision != decision {
			continue
		}
		if !since.IsZero() && rep.CreatedAt.Before(since) {
			continue
		}
		out = append(out, rep)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) Close() error { return nil }
