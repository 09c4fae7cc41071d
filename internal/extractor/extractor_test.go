package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"transcript-insights-go/internal/retry"
	"transcript-insights-go/internal/types"
)

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestMarkerFilter(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"discount dropped", []string{"Get 35% off today!", "Revenue grew 40% after the change."}, []string{"Revenue grew 40% after the change."}},
		{"urls dropped", []string{"Visit https://example.com now", "See www.shop.io", "Water boils at 100C."}, []string{"Water boils at 100C."}},
		{"sponsor phrases", []string{"This episode is sponsored by Acme.", "Use code PODCAST at checkout", "Grab a coupon"}, nil},
		{"blank claims", []string{"  ", "The law passed in 1964."}, []string{"The law passed in 1964."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MarkerFilter{}.Keep(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Keep() = %q, want %q", got, tt.want)
			}
		})
	}
}

type failingFilter struct{}

func (failingFilter) Filter(context.Context, []string) ([]string, types.CostMetrics, error) {
	return nil, nil, errors.New("filter down")
}

func TestApplyClaimPolicy(t *testing.T) {
	ctx := context.Background()
	candidates := []string{"Get 35% off today!", "Revenue grew 40% after the change."}

	got, _, err := ApplyClaimPolicy(ctx, Meeting{}, failingFilter{}, candidates)
	if err != nil || !reflect.DeepEqual(got, candidates[:1]) {
		t.Errorf("meeting: got %q, %v; want first candidate verbatim", got, err)
	}

	got, _, err = ApplyClaimPolicy(ctx, Podcast{}, MarkerFilter{}, candidates)
	if err != nil || !reflect.DeepEqual(got, candidates[1:]) {
		t.Errorf("podcast: got %q, %v", got, err)
	}

	got, _, err = ApplyClaimPolicy(ctx, Lecture{}, failingFilter{}, candidates)
	if err == nil || got != nil {
		t.Errorf("lecture with failing filter: got %q, %v; want no claims and an error", got, err)
	}

	got, _, err = ApplyClaimPolicy(ctx, Lecture{}, nil, nil)
	if err != nil || got != nil {
		t.Errorf("no candidates: got %q, %v", got, err)
	}
}

func TestFilterEntities(t *testing.T) {
	in := []string{" Alan  Turing ", "alan turing", "", "MIT", "Bletchley", "A", "B", "C", "D", "E", "F", "G"}
	got := FilterEntities(in)
	if len(got) != MaxEntities {
		t.Fatalf("len = %d, want %d", len(got), MaxEntities)
	}
	if got[0] != "Alan Turing" || got[1] != "MIT" {
		t.Errorf("unexpected order or normalization: %q", got)
	}
}

func TestParsePersona(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "lecture", false},
		{"Podcast", "podcast", false},
		{" meeting ", "meeting", false},
		{"sermon", "", true},
	}
	for _, tt := range tests {
		p, err := ParsePersona(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePersona(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || p.Name() != tt.want {
			t.Errorf("ParsePersona(%q) = %v, %v; want %s", tt.in, p, err, tt.want)
		}
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"fenced", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"prose around", `Sure! {"a": {"b": 2}} hope that helps`, `{"a": {"b": 2}}`},
		{"brace in string", `{"title": "curly } brace"}`, `{"title": "curly } brace"}`},
		{"none", "no json here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func chatReply(content string) []byte {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{{"message": map[string]string{"content": content}}},
		"usage":   map[string]int{"prompt_tokens": 120, "completion_tokens": 30},
	})
	return b
}

func TestGateway_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing auth header")
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write(chatReply("```json\n{\"title\": \"Intro\", \"summary\": \"Hello.\", \"key_concepts\": [\"recursion\"], \"entities\": [{\"name\": \"Turing\"}]}\n```"))
	}))
	defer srv.Close()

	gw, err := NewGateway(GatewayConfig{URL: srv.URL, APIKey: "k", Model: "m"}, fastRetry())
	if err != nil {
		t.Fatal(err)
	}
	a, costs, err := NewLLMAnalyzer(gw, Lecture{}).Analyze(context.Background(), "text")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Title != "Intro" || !reflect.DeepEqual(a.Entities, []string{"Turing"}) {
		t.Errorf("unexpected analysis %+v", a)
	}
	if !reflect.DeepEqual(a.Extra["key_concepts"], []string{"recursion"}) {
		t.Errorf("concepts not captured: %v", a.Extra)
	}
	if costs["llm_calls"] != 2 || costs["llm_prompt_tokens"] != 120 {
		t.Errorf("costs = %v", costs)
	}
}

func TestGateway_ClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	gw, _ := NewGateway(GatewayConfig{URL: srv.URL, APIKey: "k"}, fastRetry())
	var out map[string]any
	_, err := gw.CompleteJSON(context.Background(), "op", "prompt", &out)
	if !errors.Is(err, retry.ErrExternalCall) {
		t.Fatalf("expected ErrExternalCall, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestNewGateway_RequiresConfig(t *testing.T) {
	if _, err := NewGateway(GatewayConfig{}, fastRetry()); err == nil {
		t.Error("expected error for empty config")
	}
}

func TestSearchEnricher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Entities []string `json:"entities"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		results := []map[string]string{}
		for _, e := range req.Entities {
			results = append(results, map[string]string{"name": e, "snippet": e + " is a thing."})
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer srv.Close()

	se, err := NewSearchEnricher(srv.URL, time.Second, fastRetry())
	if err != nil {
		t.Fatal(err)
	}
	got, costs, err := se.Enrich(context.Background(), []string{"Go", "Rob Pike"}, "section text")
	if err != nil {
		t.Fatal(err)
	}
	if got["Rob Pike"] != "Rob Pike is a thing." || len(got) != 2 {
		t.Errorf("Enrich() = %v", got)
	}
	if costs["search_requests"] != 1 {
		t.Errorf("costs = %v", costs)
	}
}

func TestHeuristic_Analyze(t *testing.T) {
	h := NewHeuristic(Podcast{})
	text := `Today we talk with Grace Hopper about compilers. Compilers changed everything in 1952. "Humans are allergic to change," she said. Compilers matter.`
	a, _, err := h.Analyze(context.Background(), text)
	if err != nil || a == nil {
		t.Fatalf("Analyze: %v, %v", a, err)
	}
	if a.Title == "" || a.Summary == "" {
		t.Errorf("missing title or summary: %+v", a)
	}
	if len(a.Claims) != 1 || a.Claims[0] != "Compilers changed everything in 1952." {
		t.Errorf("claims = %q", a.Claims)
	}
	if topics, _ := a.Extra["topics"].([]string); len(topics) == 0 || topics[0] != "compilers" {
		t.Errorf("topics = %v", a.Extra)
	}

	empty, _, err := h.Analyze(context.Background(), "   ")
	if err != nil || empty != nil {
		t.Errorf("blank text should yield no analysis, got %+v", empty)
	}
}

func TestNewSuite_FallsBackToHeuristics(t *testing.T) {
	s := NewSuite(Meeting{}, Options{Retry: fastRetry()})
	if _, ok := s.Analyzer.(*Heuristic); !ok {
		t.Errorf("analyzer = %T, want *Heuristic", s.Analyzer)
	}
	if _, ok := s.Enricher.(*Heuristic); !ok {
		t.Errorf("enricher = %T, want *Heuristic", s.Enricher)
	}
}
