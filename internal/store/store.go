// Package store persists jobs, section results, job logs, finalized
// documents and credit refunds. Handles are constructed by the process
// entry point and passed down explicitly.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"transcript-insights-go/internal/types"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("not found")

// JobStore holds job status and progress.
type JobStore interface {
	CreateJob(ctx context.Context, job *types.Job) error
	GetJob(ctx context.Context, id string) (*types.Job, error)
	// ClaimJob moves a QUEUED job to PROCESSING and reports whether this
	// caller won the transition.
	ClaimJob(ctx context.Context, id string) (*types.Job, bool, error)
	// RequeueJob moves a FAILED job back to QUEUED, clearing its error, and
	// reports whether this caller made the transition. Persisted section
	// results are kept so the next run resumes from them.
	RequeueJob(ctx context.Context, id string) (*types.Job, bool, error)
	UpdateJob(ctx context.Context, id string, fn func(*types.Job)) error
	AppendLog(ctx context.Context, jobID string, entry types.LogEntry) error
	Logs(ctx context.Context, jobID string) ([]types.LogEntry, error)
}

// SectionStore holds per-section results keyed by (job id, section key).
type SectionStore interface {
	GetSection(ctx context.Context, jobID, key string) (*types.SectionResult, error)
	PutSection(ctx context.Context, jobID, key string, r types.SectionResult) error
}

// DocumentStore holds finalized run documents.
type DocumentStore interface {
	PutDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, jobID string) (*types.Document, error)
}

// Ledger records compensating refunds of pre-authorized credits. A refund
// is recorded at most once per job.
type Ledger interface {
	Refund(ctx context.Context, jobID string, credits float64, reason string) error
	Refunded(ctx context.Context, jobID string) (float64, error)
}

type Store interface {
	JobStore
	SectionStore
	DocumentStore
	Ledger
	Close() error
}

type Config struct {
	Driver    string `yaml:"driver"`
	DSN       string `yaml:"dsn"`
	RedisAddr string `yaml:"redis_addr"`
	KeyPrefix string `yaml:"key_prefix"`
}

func requeue(j *types.Job) {
	j.Status = types.StatusQueued
	j.Progress = "queued"
	j.Error = ""
}

// Open builds the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "postgres":
		return OpenGorm(cfg.Driver, cfg.DSN)
	case "redis":
		return OpenRedis(ctx, cfg.RedisAddr, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
