package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"transcript-insights-go/internal/types"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	g, err := OpenGorm("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	if err != nil {
		t.Fatalf("OpenGorm: %v", err)
	}
	t.Cleanup(func() { g.Close() })

	mr := miniredis.RunT(t)
	r := NewRedis(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "test")
	t.Cleanup(func() { r.Close() })

	return map[string]Store{"memory": NewMemory(), "sqlite": g, "redis": r}
}

func TestStore_JobLifecycle(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			job := &types.Job{ID: "job-1", Status: types.StatusQueued, Persona: "podcast", Text: "hello"}
			if err := s.CreateJob(ctx, job); err != nil {
				t.Fatal(err)
			}

			got, claimed, err := s.ClaimJob(ctx, "job-1")
			if err != nil || !claimed || got.Status != types.StatusProcessing {
				t.Fatalf("first claim = %+v, %v, %v", got, claimed, err)
			}
			if _, claimed, _ := s.ClaimJob(ctx, "job-1"); claimed {
				t.Error("second claim should lose")
			}

			err = s.UpdateJob(ctx, "job-1", func(j *types.Job) { j.Progress = "segmenting" })
			if err != nil {
				t.Fatal(err)
			}
			got, _ = s.GetJob(ctx, "job-1")
			if got.Progress != "segmenting" || got.Text != "hello" {
				t.Errorf("job after update = %+v", got)
			}

			if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
			if err := s.UpdateJob(ctx, "missing", func(*types.Job) {}); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound on update, got %v", err)
			}
		})
	}
}

func TestStore_SectionsAreWriteOnce(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := types.SectionKey(3)
			if _, err := s.GetSection(ctx, "j", key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			first := types.SectionResult{Title: "first", Extra: map[string]any{"topics": []string{"a"}}}
			if err := s.PutSection(ctx, "j", key, first); err != nil {
				t.Fatal(err)
			}
			got, err := s.GetSection(ctx, "j", key)
			if err != nil || got.Title != "first" || got.ConceptCount() != 1 {
				t.Fatalf("GetSection = %+v, %v", got, err)
			}
			_ = s.PutSection(ctx, "j", key, types.SectionResult{Title: "second"})
			got, _ = s.GetSection(ctx, "j", key)
			if got.Title != "first" {
				t.Errorf("section overwritten: %q", got.Title)
			}
		})
	}
}

func TestStore_LogsDocumentsRefunds(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, stage := range []string{"preparing", "segmenting"} {
				if err := s.AppendLog(ctx, "j", types.LogEntry{Stage: stage, Level: "info"}); err != nil {
					t.Fatal(err)
				}
			}
			logs, err := s.Logs(ctx, "j")
			if err != nil || len(logs) != 2 || logs[1].Stage != "segmenting" {
				t.Errorf("Logs = %+v, %v", logs, err)
			}

			doc := &types.Document{JobID: "j", Title: "T", Costs: types.CostMetrics{"llm_calls": 4}}
			if err := s.PutDocument(ctx, doc); err != nil {
				t.Fatal(err)
			}
			doc.Title = "T2"
			if err := s.PutDocument(ctx, doc); err != nil {
				t.Fatal(err)
			}
			got, err := s.GetDocument(ctx, "j")
			if err != nil || got.Title != "T2" || got.Costs["llm_calls"] != 4 {
				t.Errorf("GetDocument = %+v, %v", got, err)
			}

			if err := s.Refund(ctx, "j", 12.5, "failed"); err != nil {
				t.Fatal(err)
			}
			if err := s.Refund(ctx, "j", 99, "again"); err != nil {
				t.Fatal(err)
			}
			if v, _ := s.Refunded(ctx, "j"); v != 12.5 {
				t.Errorf("Refunded = %v, want 12.5", v)
			}
		})
	}
}

func TestStore_ConcurrentClaim(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.CreateJob(ctx, &types.Job{ID: "j", Status: types.StatusQueued}); err != nil {
				t.Fatal(err)
			}

			var wg sync.WaitGroup
			var mu sync.Mutex
			wins := 0
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, ok, _ := s.ClaimJob(ctx, "j"); ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			if wins != 1 {
				t.Errorf("wins = %d, want 1", wins)
			}
			if got, _ := s.GetJob(ctx, "j"); got.Status != types.StatusProcessing {
				t.Errorf("status = %s", got.Status)
			}
		})
	}
}

func TestStore_RequeueJob(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.CreateJob(ctx, &types.Job{ID: "r", Status: types.StatusQueued, Text: "keep"}); err != nil {
				t.Fatal(err)
			}
			if _, ok, err := s.RequeueJob(ctx, "r"); ok || err != nil {
				t.Fatalf("requeue of queued job = %v, %v", ok, err)
			}

			err := s.UpdateJob(ctx, "r", func(j *types.Job) {
				j.Status = types.StatusFailed
				j.Progress = "failed"
				j.Error = "analyzing failed: boom"
			})
			if err != nil {
				t.Fatal(err)
			}
			if err := s.PutSection(ctx, "r", types.SectionKey(0), types.SectionResult{Title: "kept"}); err != nil {
				t.Fatal(err)
			}

			got, ok, err := s.RequeueJob(ctx, "r")
			if err != nil || !ok {
				t.Fatalf("requeue = %v, %v", ok, err)
			}
			if got.Status != types.StatusQueued || got.Error != "" || got.Progress != "queued" || got.Text != "keep" {
				t.Errorf("requeued job = %+v", got)
			}
			if stored, _ := s.GetJob(ctx, "r"); stored.Status != types.StatusQueued || stored.Error != "" {
				t.Errorf("stored job = %+v", stored)
			}
			if _, ok, _ := s.RequeueJob(ctx, "r"); ok {
				t.Error("second requeue should not transition")
			}
			if sec, err := s.GetSection(ctx, "r", types.SectionKey(0)); err != nil || sec.Title != "kept" {
				t.Errorf("section after requeue = %+v, %v", sec, err)
			}
			if _, _, err := s.RequeueJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), Config{Driver: "cassandra"}); err == nil {
		t.Error("expected error")
	}
}
