package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"transcript-insights-go/internal/types"
)

// Redis stores every record as JSON under prefixed keys. Section results
// use SETNX so the first write for a key wins.
type Redis struct {
	rdb    *goredis.Client
	prefix string
}

func OpenRedis(ctx context.Context, addr, prefix string) (*Redis, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(rdb, prefix), nil
}

func NewRedis(rdb *goredis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "transcripts"
	}
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) jobKey(id string) string          { return r.prefix + ":job:" + id }
func (r *Redis) logKey(id string) string          { return r.prefix + ":log:" + id }
func (r *Redis) docKey(id string) string          { return r.prefix + ":doc:" + id }
func (r *Redis) refundKey(id string) string       { return r.prefix + ":refund:" + id }
func (r *Redis) sectionKey(id, key string) string { return r.prefix + ":section:" + id + ":" + key }

func (r *Redis) getJSON(ctx context.Context, key string, out any) error {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (r *Redis) CreateJob(ctx context.Context, job *types.Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.jobKey(job.ID), raw, 0).Err()
}

func (r *Redis) GetJob(ctx context.Context, id string) (*types.Job, error) {
	var j types.Job
	if err := r.getJSON(ctx, r.jobKey(id), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// mutate applies fn under WATCH so concurrent writers retry instead of
// overwriting each other.
func (r *Redis) mutate(ctx context.Context, id string, fn func(*types.Job) bool) (*types.Job, bool, error) {
	key := r.jobKey(id)
	var out *types.Job
	var changed bool
	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var j types.Job
		if err := json.Unmarshal(raw, &j); err != nil {
			return err
		}
		out, changed = &j, fn(&j)
		if !changed {
			return nil
		}
		j.UpdatedAt = time.Now().UTC()
		next, err := json.Marshal(&j)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, key, next, 0)
			return nil
		})
		return err
	}
	for i := 0; i < 5; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return out, changed, err
	}
	return nil, false, fmt.Errorf("job %s: too much contention", id)
}

func (r *Redis) ClaimJob(ctx context.Context, id string) (*types.Job, bool, error) {
	return r.mutate(ctx, id, func(j *types.Job) bool {
		if j.Status != types.StatusQueued {
			return false
		}
		j.Status = types.StatusProcessing
		return true
	})
}

func (r *Redis) RequeueJob(ctx context.Context, id string) (*types.Job, bool, error) {
	return r.mutate(ctx, id, func(j *types.Job) bool {
		if j.Status != types.StatusFailed {
			return false
		}
		requeue(j)
		return true
	})
}

func (r *Redis) UpdateJob(ctx context.Context, id string, fn func(*types.Job)) error {
	_, _, err := r.mutate(ctx, id, func(j *types.Job) bool { fn(j); return true })
	return err
}

func (r *Redis) AppendLog(ctx context.Context, jobID string, e types.LogEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.rdb.RPush(ctx, r.logKey(jobID), raw).Err()
}

func (r *Redis) Logs(ctx context.Context, jobID string) ([]types.LogEntry, error) {
	items, err := r.rdb.LRange(ctx, r.logKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]types.LogEntry, 0, len(items))
	for _, it := range items {
		var e types.LogEntry
		if err := json.Unmarshal([]byte(it), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Redis) GetSection(ctx context.Context, jobID, key string) (*types.SectionResult, error) {
	var res types.SectionResult
	if err := r.getJSON(ctx, r.sectionKey(jobID, key), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Redis) PutSection(ctx context.Context, jobID, key string, res types.SectionResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return r.rdb.SetNX(ctx, r.sectionKey(jobID, key), raw, 0).Err()
}

func (r *Redis) PutDocument(ctx context.Context, doc *types.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.docKey(doc.JobID), raw, 0).Err()
}

func (r *Redis) GetDocument(ctx context.Context, jobID string) (*types.Document, error) {
	var d types.Document
	if err := r.getJSON(ctx, r.docKey(jobID), &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Redis) Refund(ctx context.Context, jobID string, credits float64, _ string) error {
	return r.rdb.SetNX(ctx, r.refundKey(jobID), strconv.FormatFloat(credits, 'f', -1, 64), 0).Err()
}

func (r *Redis) Refunded(ctx context.Context, jobID string) (float64, error) {
	v, err := r.rdb.Get(ctx, r.refundKey(jobID)).Float64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return v, err
}

func (r *Redis) Close() error { return r.rdb.Close() }
