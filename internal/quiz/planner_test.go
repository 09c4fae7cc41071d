package quiz

import (
	"math/rand"
	"testing"

	"transcript-insights-go/internal/types"
)

func result(concepts, entities, quotes int) types.SectionResult {
	r := types.SectionResult{Extra: map[string]any{"key_concepts": make([]string, concepts)}}
	for i := 0; i < entities; i++ {
		r.Entities = append(r.Entities, types.Entity{Name: "e"})
	}
	r.Quotes = make([]string, quotes)
	return r
}

func repeat(r types.SectionResult, n int) []types.SectionResult {
	out := make([]types.SectionResult, n)
	for i := range out {
		out[i] = r
	}
	return out
}

func TestRichness(t *testing.T) {
	if got := Richness(result(2, 1, 1)); got != 6 {
		t.Errorf("Richness = %d, want 6", got)
	}
	claimsOnly := types.SectionResult{Claims: []string{"a", "b"}}
	if got := Richness(claimsOnly); got != 4 {
		t.Errorf("Richness without concept list = %d, want 4", got)
	}
}

func TestGroupCount(t *testing.T) {
	rich := result(3, 2, 1)
	thin := result(0, 1, 0)
	tests := []struct {
		name    string
		results []types.SectionResult
		want    int
	}{
		{"three sections", repeat(rich, 3), 1},
		{"many thin sections", repeat(thin, 12), 1},
		{"six rich sections", repeat(rich, 6), 2},
		{"twenty with few substantial", append(repeat(rich, 4), repeat(thin, 16)...), 2},
		{"twelve rich sections", repeat(rich, 12), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultConfig().GroupCount(tt.results); got != tt.want {
				t.Errorf("GroupCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPlan_RemainderGoesToEarliestGroups(t *testing.T) {
	groups := Plan(repeat(result(3, 2, 1), 11), DefaultConfig())
	if len(groups) != 3 {
		t.Fatalf("groups = %d, want 3", len(groups))
	}
	for i, want := range []int{4, 4, 3} {
		if len(groups[i].SectionIndices) != want || len(groups[i].Sections) != want {
			t.Errorf("group %d size = %d, want %d", i, len(groups[i].SectionIndices), want)
		}
		if groups[i].QuizNumber != i+1 {
			t.Errorf("group %d number = %d", i, groups[i].QuizNumber)
		}
	}
	if groups[0].EstimatedQuestions != 10 {
		t.Errorf("estimated questions = %d, want clamp at 10", groups[0].EstimatedQuestions)
	}
}

func TestPlan_MergesUnderPoweredGroups(t *testing.T) {
	rich := result(3, 2, 1)
	empty := result(0, 0, 0)
	// six sections -> two groups; the first holds no concepts and folds forward
	in := append(repeat(empty, 3), repeat(rich, 3)...)
	in[3] = result(3, 2, 1)
	groups := Plan(in, DefaultConfig())
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1 after merge", len(groups))
	}
	if groups[0].QuizNumber != 1 || len(groups[0].SectionIndices) != 6 || groups[0].TotalConcepts != 9 {
		t.Errorf("merged group = %+v", groups[0])
	}

	// trailing under-powered group folds backward
	tail := append(repeat(rich, 3), repeat(empty, 3)...)
	groups = Plan(tail, DefaultConfig())
	if len(groups) != 1 || groups[0].SectionIndices[5] != 5 {
		t.Errorf("tail merge = %+v", groups)
	}
}

func TestPlan_MinimumQuestions(t *testing.T) {
	groups := Plan([]types.SectionResult{result(0, 0, 0)}, DefaultConfig())
	if len(groups) != 1 || groups[0].EstimatedQuestions != 3 {
		t.Errorf("groups = %+v", groups)
	}
	if Plan(nil, DefaultConfig()) != nil {
		t.Error("no sections should plan no quizzes")
	}
}

func TestPlan_IndicesCoverInputExactlyOnce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.Intn(30)
		in := make([]types.SectionResult, n)
		for i := range in {
			in[i] = result(rng.Intn(5), rng.Intn(4), rng.Intn(3))
		}
		groups := Plan(in, DefaultConfig())
		next := 0
		for gi, g := range groups {
			if g.QuizNumber != gi+1 {
				t.Fatalf("trial %d: quiz numbers not sequential", trial)
			}
			for _, idx := range g.SectionIndices {
				if idx != next {
					t.Fatalf("trial %d: index %d, want %d (groups %+v)", trial, idx, next, groups)
				}
				next++
			}
			if g.EstimatedQuestions < 3 || g.EstimatedQuestions > 10 {
				t.Fatalf("trial %d: estimate %d outside band", trial, g.EstimatedQuestions)
			}
		}
		if next != n {
			t.Fatalf("trial %d: covered %d of %d sections", trial, next, n)
		}
	}
}
