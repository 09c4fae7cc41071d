package synthesis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"transcript-insights-go/internal/types"
)

type fakeMeta struct {
	mu          sync.Mutex
	failChunks  map[int]bool
	directCalls int
	chunkCalls  int
	reduceCalls int
	reduceInput []string
	directErr   error
}

func (f *fakeMeta) Synthesize(_ context.Context, results []types.SectionResult) (types.Synthesis, types.CostMetrics, error) {
	f.mu.Lock()
	f.directCalls++
	f.mu.Unlock()
	if f.directErr != nil {
		return types.Synthesis{}, nil, f.directErr
	}
	return types.Synthesis{Title: fmt.Sprintf("direct over %d", len(results))}, types.CostMetrics{"llm_calls": 1}, nil
}

func (f *fakeMeta) SummarizeChunk(_ context.Context, chunk []types.SectionResult) (string, types.CostMetrics, error) {
	f.mu.Lock()
	f.chunkCalls++
	f.mu.Unlock()
	var first int
	fmt.Sscanf(chunk[0].Title, "s%d", &first)
	if f.failChunks[first] {
		return "", types.CostMetrics{"llm_calls": 1}, errors.New("chunk failed")
	}
	return fmt.Sprintf("from %s to %s", chunk[0].Title, chunk[len(chunk)-1].Title), types.CostMetrics{"llm_calls": 1}, nil
}

func (f *fakeMeta) FinalStructure(_ context.Context, summaries []string) (types.Synthesis, types.CostMetrics, error) {
	f.mu.Lock()
	f.reduceCalls++
	f.reduceInput = summaries
	f.mu.Unlock()
	return types.Synthesis{Title: "reduced", Arguments: summaries}, types.CostMetrics{"llm_calls": 1}, nil
}

func sections(n int) []types.SectionResult {
	out := make([]types.SectionResult, n)
	for i := range out {
		out[i].Title = fmt.Sprintf("s%d", i)
	}
	return out
}

func TestSynthesize_DirectForSmallDocuments(t *testing.T) {
	m := &fakeMeta{}
	out, shape, costs, err := New(m, Config{}).Synthesize(context.Background(), sections(5))
	if err != nil || shape != ShapeDirect || out.Title != "direct over 5" {
		t.Fatalf("got %+v, %s, %v", out, shape, err)
	}
	if m.chunkCalls != 0 || costs["llm_calls"] != 1 {
		t.Errorf("chunkCalls=%d costs=%v", m.chunkCalls, costs)
	}
}

func TestSynthesize_MapReduceKeepsChunkOrder(t *testing.T) {
	m := &fakeMeta{}
	out, shape, costs, err := New(m, Config{DirectMax: 5, ChunkSize: 5}).Synthesize(context.Background(), sections(12))
	if err != nil || shape != ShapeMapReduce {
		t.Fatalf("shape=%s err=%v", shape, err)
	}
	want := []string{"from s0 to s4", "from s5 to s9", "from s10 to s11"}
	if len(out.Arguments) != 3 {
		t.Fatalf("arguments = %q", out.Arguments)
	}
	for i := range want {
		if out.Arguments[i] != want[i] {
			t.Errorf("argument %d = %q, want %q", i, out.Arguments[i], want[i])
		}
	}
	if costs["llm_calls"] != 4 {
		t.Errorf("llm_calls = %v, want 4", costs["llm_calls"])
	}
}

func TestSynthesize_DropsFailedChunks(t *testing.T) {
	m := &fakeMeta{failChunks: map[int]bool{5: true}}
	out, _, _, err := New(m, Config{ChunkSize: 5}).Synthesize(context.Background(), sections(12))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.reduceInput) != 2 || m.reduceInput[1] != "from s10 to s11" {
		t.Errorf("reduce input = %q", m.reduceInput)
	}
	if out.Empty() {
		t.Error("expected a synthesis")
	}
}

func TestSynthesize_AllChunksFailSkipsReduce(t *testing.T) {
	m := &fakeMeta{failChunks: map[int]bool{0: true, 5: true, 10: true}}
	out, _, _, err := New(m, Config{ChunkSize: 5}).Synthesize(context.Background(), sections(12))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !out.Empty() {
		t.Errorf("expected empty synthesis, got %+v", out)
	}
	if m.reduceCalls != 0 {
		t.Errorf("reduce called %d times", m.reduceCalls)
	}
	if m.chunkCalls != 3 {
		t.Errorf("chunk calls = %d, want 3", m.chunkCalls)
	}
}

func TestSynthesize_DirectFailureIsSynthesisError(t *testing.T) {
	m := &fakeMeta{directErr: errors.New("gateway down")}
	out, _, _, err := New(m, Config{}).Synthesize(context.Background(), sections(2))
	if !errors.Is(err, ErrSynthesis) || !out.Empty() {
		t.Errorf("got %+v, %v", out, err)
	}
}

func TestSynthesize_NoSections(t *testing.T) {
	m := &fakeMeta{}
	out, shape, _, err := New(m, Config{}).Synthesize(context.Background(), nil)
	if err != nil || shape != ShapeNone || !out.Empty() || m.directCalls != 0 {
		t.Errorf("got %+v, %s, %v", out, shape, err)
	}
}

func TestChunks(t *testing.T) {
	got := Chunks(sections(11), 5)
	if len(got) != 3 || len(got[2]) != 1 || got[2][0].Title != "s10" {
		t.Errorf("chunks = %v", got)
	}
}
