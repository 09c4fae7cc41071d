package processor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"transcript-insights-go/internal/extractor"
	"transcript-insights-go/internal/store"
	"transcript-insights-go/internal/types"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	calls    int
	analysis *extractor.Analysis
	err      error
	panicOn  string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, text string) (*extractor.Analysis, types.CostMetrics, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panicOn != "" && text == f.panicOn {
		panic("analyzer exploded")
	}
	return f.analysis, types.CostMetrics{"llm_calls": 1}, f.err
}

type fakeEnricher struct {
	names []string
	err   error
}

func (f *fakeEnricher) Enrich(_ context.Context, names []string, _ string) (map[string]string, types.CostMetrics, error) {
	f.names = names
	if f.err != nil {
		return nil, nil, f.err
	}
	out := map[string]string{}
	for _, n := range names {
		out[n] = "about " + n
	}
	return out, types.CostMetrics{"search_requests": 1}, nil
}

func section(text string, start, end int) types.Section {
	return types.Section{
		Utterances: []types.Utterance{{SpeakerID: "A", StartSeconds: start, EndSeconds: end, Text: text}},
		StartTime:  start,
		EndTime:    end,
	}
}

func newProcessor(p extractor.Persona, a *fakeAnalyzer, e *fakeEnricher, s store.SectionStore) *Processor {
	return New(&extractor.Suite{Persona: p, Analyzer: a, Enricher: e, Claims: extractor.MarkerFilter{}}, s)
}

func TestProcess_CompletesAndPersists(t *testing.T) {
	a := &fakeAnalyzer{analysis: &extractor.Analysis{
		Title:    "Growth",
		Summary:  "Numbers went up.",
		Entities: []string{"Acme", "acme", " "},
		Claims:   []string{"Get 35% off today!", "Revenue grew 40% after the change."},
		Extra:    map[string]any{"topics": []string{"growth"}},
	}}
	e := &fakeEnricher{}
	s := store.NewMemory()
	res := newProcessor(extractor.Podcast{}, a, e, s).Process(context.Background(), "job", 2, section("text", 60, 150))

	if res.Outcome != Completed || res.Err != nil {
		t.Fatalf("outcome = %v, err = %v", res.Outcome, res.Err)
	}
	r := res.Section
	if r.StartTime != "01:00" || r.EndTime != "02:30" {
		t.Errorf("times = %q - %q", r.StartTime, r.EndTime)
	}
	if len(r.Claims) != 1 || r.Claims[0] != "Revenue grew 40% after the change." {
		t.Errorf("claims = %q", r.Claims)
	}
	if len(e.names) != 1 || len(r.Entities) != 1 || r.Entities[0].Explanation != "about Acme" {
		t.Errorf("entities = %+v (enricher saw %q)", r.Entities, e.names)
	}
	if res.Costs["llm_calls"] != 1 || res.Costs["search_requests"] != 1 {
		t.Errorf("costs = %v", res.Costs)
	}
	if stored, err := s.GetSection(context.Background(), "job", "section_002"); err != nil || stored.Title != "Growth" {
		t.Errorf("persisted = %+v, %v", stored, err)
	}
}

func TestProcess_IsIdempotent(t *testing.T) {
	a := &fakeAnalyzer{analysis: &extractor.Analysis{Title: "Once", Summary: "s"}}
	s := store.NewMemory()
	p := newProcessor(extractor.Lecture{}, a, &fakeEnricher{}, s)

	first := p.Process(context.Background(), "job", 0, section("text", 0, 10))
	a.analysis = &extractor.Analysis{Title: "Twice", Summary: "s"}
	second := p.Process(context.Background(), "job", 0, section("text", 0, 10))

	if first.Outcome != Completed || second.Outcome != Reused {
		t.Fatalf("outcomes = %v, %v", first.Outcome, second.Outcome)
	}
	if a.calls != 1 {
		t.Errorf("analyzer calls = %d, want 1", a.calls)
	}
	if second.Section.Title != "Once" {
		t.Errorf("reused title = %q, want the persisted one", second.Section.Title)
	}
}

func TestProcess_NoDataIsSkipped(t *testing.T) {
	tests := []struct {
		name string
		a    *fakeAnalyzer
	}{
		{"nil analysis", &fakeAnalyzer{}},
		{"analyzer error", &fakeAnalyzer{err: errors.New("gateway down")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemory()
			res := newProcessor(extractor.Lecture{}, tt.a, &fakeEnricher{}, s).Process(context.Background(), "job", 1, section("t", 0, 5))
			if res.Outcome != Skipped || res.Reason != ReasonNoData || res.Err != nil {
				t.Errorf("result = %+v", res)
			}
			if _, err := s.GetSection(context.Background(), "job", "section_001"); !errors.Is(err, store.ErrNotFound) {
				t.Errorf("skipped section should not be persisted")
			}
		})
	}
}

func TestProcess_MeetingKeepsFirstClaimVerbatim(t *testing.T) {
	a := &fakeAnalyzer{analysis: &extractor.Analysis{Title: "t", Claims: []string{"Use code SAVE for 20% off", "second"}}}
	res := newProcessor(extractor.Meeting{}, a, &fakeEnricher{}, store.NewMemory()).Process(context.Background(), "job", 0, section("t", -1, -1))
	if len(res.Section.Claims) != 1 || res.Section.Claims[0] != "Use code SAVE for 20% off" {
		t.Errorf("claims = %q", res.Section.Claims)
	}
	if res.Section.StartTime != "" {
		t.Errorf("untimed section should have empty start, got %q", res.Section.StartTime)
	}
}

func TestProcess_EnricherFailureKeepsNames(t *testing.T) {
	a := &fakeAnalyzer{analysis: &extractor.Analysis{Title: "t", Entities: []string{"Go"}}}
	e := &fakeEnricher{err: errors.New("search down")}
	res := newProcessor(extractor.Lecture{}, a, e, store.NewMemory()).Process(context.Background(), "job", 0, section("t", 0, 1))
	if res.Outcome != Completed || len(res.Section.Entities) != 1 || res.Section.Entities[0].Explanation != "" {
		t.Errorf("result = %+v", res.Section)
	}
}

type brokenStore struct{ store.SectionStore }

func (brokenStore) GetSection(context.Context, string, string) (*types.SectionResult, error) {
	return nil, store.ErrNotFound
}

func (brokenStore) PutSection(context.Context, string, string, types.SectionResult) error {
	return errors.New("disk full")
}

func TestProcess_FailuresAreContained(t *testing.T) {
	a := &fakeAnalyzer{analysis: &extractor.Analysis{Title: "t"}, panicOn: "boom"}
	p := newProcessor(extractor.Lecture{}, a, &fakeEnricher{}, store.NewMemory())

	panicked := p.Process(context.Background(), "job", 0, section("boom", 0, 1))
	if panicked.Outcome != Failed || !errors.Is(panicked.Err, ErrSectionProcessing) {
		t.Errorf("panic result = %+v", panicked)
	}
	sibling := p.Process(context.Background(), "job", 1, section("fine", 1, 2))
	if sibling.Outcome != Completed {
		t.Errorf("sibling outcome = %v", sibling.Outcome)
	}

	persistFail := newProcessor(extractor.Lecture{}, a, &fakeEnricher{}, brokenStore{}).Process(context.Background(), "job", 2, section("x", 0, 1))
	if persistFail.Outcome != Failed || !errors.Is(persistFail.Err, ErrSectionProcessing) {
		t.Errorf("persist failure result = %+v", persistFail)
	}
}
