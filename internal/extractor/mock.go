package extractor

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"transcript-insights-go/internal/types"
)

var (
	sentenceSplit = regexp.MustCompile(`[^.!?]+[.!?]*`)
	hasDigit      = regexp.MustCompile(`\d`)
)

var stopwords = map[string]bool{
	"about": true, "after": true, "again": true, "because": true, "before": true,
	"being": true, "could": true, "every": true, "going": true, "other": true,
	"really": true, "something": true, "their": true, "there": true, "these": true,
	"thing": true, "things": true, "think": true, "those": true, "through": true,
	"where": true, "which": true, "while": true, "would": true, "people": true,
}

// Heuristic is a deterministic offline stand-in for the LLM-backed
// capabilities. It is used when the gateway is mocked.
type Heuristic struct {
	persona Persona
}

func NewHeuristic(p Persona) *Heuristic {
	if p == nil {
		p = Lecture{}
	}
	return &Heuristic{persona: p}
}

func sentences(text string) []string {
	var out []string
	for _, s := range sentenceSplit.FindAllString(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (h *Heuristic) Analyze(_ context.Context, text string) (*Analysis, types.CostMetrics, error) {
	sents := sentences(text)
	if len(sents) == 0 {
		return nil, nil, nil
	}
	a := &Analysis{
		Title:    headline(sents[0], 6),
		Summary:  strings.Join(sents[:min(2, len(sents))], " "),
		Entities: properNouns(text),
	}
	for _, s := range sents {
		if strings.ContainsAny(s, `"“`) {
			a.Quotes = append(a.Quotes, strings.Trim(s, `"“” `))
		}
		if hasDigit.MatchString(s) {
			a.Claims = append(a.Claims, s)
		}
	}
	if len(a.Quotes) == 0 {
		a.Quotes = []string{sents[0]}
	}
	if concepts := topTerms(text, 5); len(concepts) > 0 {
		a.Extra = map[string]any{h.persona.ConceptKey(): concepts}
	}
	return a, types.CostMetrics{"heuristic_calls": 1}, nil
}

func (h *Heuristic) Enrich(_ context.Context, names []string, _ string) (map[string]string, types.CostMetrics, error) {
	out := make(map[string]string, len(names))
	for _, n := range names {
		out[n] = fmt.Sprintf("%s is referenced in this part of the transcript.", n)
	}
	return out, types.CostMetrics{"heuristic_calls": 1}, nil
}

func (h *Heuristic) Filter(ctx context.Context, claims []string) ([]string, types.CostMetrics, error) {
	return MarkerFilter{}.Filter(ctx, claims)
}

func (h *Heuristic) Synthesize(_ context.Context, results []types.SectionResult) (types.Synthesis, types.CostMetrics, error) {
	var s types.Synthesis
	var overview []string
	for _, r := range results {
		if s.Title == "" && r.Title != "" {
			s.Title = r.Title
		}
		if r.Title != "" {
			s.Arguments = append(s.Arguments, r.Title)
		}
		if sents := sentences(r.Summary); len(sents) > 0 {
			overview = append(overview, sents[0])
		}
	}
	s.Overview = strings.Join(overview, " ")
	return s, types.CostMetrics{"heuristic_calls": 1}, nil
}

func (h *Heuristic) SummarizeChunk(_ context.Context, chunk []types.SectionResult) (string, types.CostMetrics, error) {
	var parts []string
	for _, r := range chunk {
		if r.Summary != "" {
			parts = append(parts, r.Summary)
		}
	}
	return strings.Join(parts, " "), types.CostMetrics{"heuristic_calls": 1}, nil
}

func (h *Heuristic) FinalStructure(_ context.Context, summaries []string) (types.Synthesis, types.CostMetrics, error) {
	var s types.Synthesis
	for _, sum := range summaries {
		sents := sentences(sum)
		if len(sents) == 0 {
			continue
		}
		if s.Title == "" {
			s.Title = headline(sents[0], 6)
		}
		s.Arguments = append(s.Arguments, sents[0])
	}
	s.Overview = strings.Join(s.Arguments, " ")
	return s, types.CostMetrics{"heuristic_calls": 1}, nil
}

func headline(sentence string, words int) string {
	f := strings.Fields(strings.TrimRight(sentence, ".!?"))
	if len(f) > words {
		f = f[:words]
	}
	return strings.Join(f, " ")
}

// properNouns picks capitalized words that do not open a sentence.
func properNouns(text string) []string {
	var out []string
	for _, s := range sentences(text) {
		f := strings.Fields(s)
		for i := 1; i < len(f); i++ {
			w := strings.TrimFunc(f[i], func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
			if len(w) > 1 && unicode.IsUpper([]rune(w)[0]) && w != "I" {
				out = append(out, w)
			}
		}
	}
	return FilterEntities(out)
}

func topTerms(text string, n int) []string {
	counts := map[string]int{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
		if len(w) < 5 || stopwords[w] {
			continue
		}
		counts[w]++
	}
	terms := make([]string, 0, len(counts))
	for w, c := range counts {
		if c > 1 {
			terms = append(terms, w)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}
