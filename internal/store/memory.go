package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"transcript-insights-go/internal/types"
)

// Memory is an in-process Store. Values are deep-copied through JSON so
// callers never share mutable state with the store.
type Memory struct {
	mu       sync.Mutex
	jobs     map[string]types.Job
	sections map[string]map[string][]byte
	logs     map[string][]types.LogEntry
	docs     map[string][]byte
	refunds  map[string]float64
}

func NewMemory() *Memory {
	return &Memory{
		jobs:     map[string]types.Job{},
		sections: map[string]map[string][]byte{},
		logs:     map[string][]types.LogEntry{},
		docs:     map[string][]byte{},
		refunds:  map[string]float64{},
	}
}

func (m *Memory) CreateJob(_ context.Context, job *types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = copyJob(*job)
	return nil
}

func (m *Memory) GetJob(_ context.Context, id string) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyJob(j)
	return &out, nil
}

func (m *Memory) ClaimJob(_ context.Context, id string) (*types.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if j.Status != types.StatusQueued {
		out := copyJob(j)
		return &out, false, nil
	}
	j.Status = types.StatusProcessing
	j.UpdatedAt = time.Now().UTC()
	m.jobs[id] = j
	out := copyJob(j)
	return &out, true, nil
}

func (m *Memory) RequeueJob(_ context.Context, id string) (*types.Job, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if j.Status != types.StatusFailed {
		out := copyJob(j)
		return &out, false, nil
	}
	requeue(&j)
	j.UpdatedAt = time.Now().UTC()
	m.jobs[id] = j
	out := copyJob(j)
	return &out, true, nil
}

func (m *Memory) UpdateJob(_ context.Context, id string, fn func(*types.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(&j)
	j.UpdatedAt = time.Now().UTC()
	m.jobs[id] = copyJob(j)
	return nil
}

func (m *Memory) AppendLog(_ context.Context, jobID string, e types.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[jobID] = append(m.logs[jobID], e)
	return nil
}

func (m *Memory) Logs(_ context.Context, jobID string) ([]types.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.LogEntry(nil), m.logs[jobID]...), nil
}

func (m *Memory) GetSection(_ context.Context, jobID, key string) (*types.SectionResult, error) {
	m.mu.Lock()
	raw, ok := m.sections[jobID][key]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var r types.SectionResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (m *Memory) PutSection(_ context.Context, jobID, key string, r types.SectionResult) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sections[jobID] == nil {
		m.sections[jobID] = map[string][]byte{}
	}
	if _, exists := m.sections[jobID][key]; exists {
		return nil
	}
	m.sections[jobID][key] = raw
	return nil
}

func (m *Memory) PutDocument(_ context.Context, doc *types.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.JobID] = raw
	return nil
}

func (m *Memory) GetDocument(_ context.Context, jobID string) (*types.Document, error) {
	m.mu.Lock()
	raw, ok := m.docs[jobID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	var d types.Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (m *Memory) Refund(_ context.Context, jobID string, credits float64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, done := m.refunds[jobID]; done {
		return nil
	}
	m.refunds[jobID] = credits
	return nil
}

func (m *Memory) Refunded(_ context.Context, jobID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refunds[jobID], nil
}

func (m *Memory) Close() error { return nil }

func copyJob(j types.Job) types.Job {
	j.Records = append([]types.TimedRecord(nil), j.Records...)
	return j
}
