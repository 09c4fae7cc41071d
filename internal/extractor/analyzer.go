package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"transcript-insights-go/internal/types"
)

// LLMAnalyzer implements ContentAnalyzer and MetaAnalyzer on top of the
// gateway, with prompts shaped by the persona.
type LLMAnalyzer struct {
	gw      *Gateway
	persona Persona
}

func NewLLMAnalyzer(gw *Gateway, p Persona) *LLMAnalyzer {
	return &LLMAnalyzer{gw: gw, persona: p}
}

func (a *LLMAnalyzer) sectionPrompt(text string) string {
	return fmt.Sprintf(`You analyze one section of a transcript for %s.

Return ONLY a JSON object with keys:
title (short, specific), summary (2-4 sentences), quotes (verbatim lines worth keeping),
entities (people, organizations, works, technical terms), claims (checkable factual statements),
%s (list of strings).
Use only the section text. Leave lists empty instead of inventing content.

SECTION:
"""%s"""
`, a.persona.Focus(), a.persona.ConceptKey(), text)
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, text string) (*Analysis, types.CostMetrics, error) {
	var raw map[string]any
	costs, err := a.gw.CompleteJSON(ctx, "analyze_section", a.sectionPrompt(text), &raw)
	if err != nil {
		return nil, costs, err
	}
	out := &Analysis{
		Title:    stringField(raw["title"]),
		Summary:  stringField(raw["summary"]),
		Quotes:   stringList(raw["quotes"]),
		Entities: stringList(raw["entities"]),
		Claims:   stringList(raw["claims"]),
	}
	if concepts := stringList(raw[a.persona.ConceptKey()]); len(concepts) > 0 {
		out.Extra = map[string]any{a.persona.ConceptKey(): concepts}
	}
	if out.Title == "" && out.Summary == "" && len(out.Quotes) == 0 && len(out.Claims) == 0 {
		return nil, costs, nil
	}
	return out, costs, nil
}

func (a *LLMAnalyzer) Synthesize(ctx context.Context, results []types.SectionResult) (types.Synthesis, types.CostMetrics, error) {
	digest, err := json.Marshal(compactResults(results))
	if err != nil {
		return types.Synthesis{}, nil, err
	}
	prompt := fmt.Sprintf(`You write the overall structure of a transcript for %s.

Return ONLY a JSON object with keys: title, overview (one paragraph), arguments (ordered list of the main arguments or narrative beats).

SECTIONS:
%s
`, a.persona.Focus(), digest)
	return a.structure(ctx, "synthesize", prompt)
}

func (a *LLMAnalyzer) SummarizeChunk(ctx context.Context, chunk []types.SectionResult) (string, types.CostMetrics, error) {
	digest, err := json.Marshal(compactResults(chunk))
	if err != nil {
		return "", nil, err
	}
	prompt := fmt.Sprintf(`Summarize this run of consecutive transcript sections for %s.
Keep the order of ideas. Return ONLY a JSON object: {"summary": "..."}.

SECTIONS:
%s
`, a.persona.Focus(), digest)
	var out struct {
		Summary string `json:"summary"`
	}
	costs, err := a.gw.CompleteJSON(ctx, "summarize_chunk", prompt, &out)
	if err != nil {
		return "", costs, err
	}
	return strings.TrimSpace(out.Summary), costs, nil
}

func (a *LLMAnalyzer) FinalStructure(ctx context.Context, summaries []string) (types.Synthesis, types.CostMetrics, error) {
	var b strings.Builder
	for i, s := range summaries {
		fmt.Fprintf(&b, "PART %d:\n%s\n\n", i+1, s)
	}
	prompt := fmt.Sprintf(`These are ordered partial summaries of one transcript, written for %s.

Return ONLY a JSON object with keys: title, overview (one paragraph), arguments (ordered list of the main arguments or narrative beats across all parts).

%s`, a.persona.Focus(), b.String())
	return a.structure(ctx, "final_structure", prompt)
}

func (a *LLMAnalyzer) structure(ctx context.Context, op, prompt string) (types.Synthesis, types.CostMetrics, error) {
	var raw map[string]any
	costs, err := a.gw.CompleteJSON(ctx, op, prompt, &raw)
	if err != nil {
		return types.Synthesis{}, costs, err
	}
	return types.Synthesis{
		Title:     stringField(raw["title"]),
		Overview:  stringField(raw["overview"]),
		Arguments: stringList(raw["arguments"]),
	}, costs, nil
}

// LLMClaimFilter asks the gateway which claims are substantive, then
// applies the marker rules to whatever comes back.
type LLMClaimFilter struct {
	gw *Gateway
}

func NewLLMClaimFilter(gw *Gateway) *LLMClaimFilter {
	return &LLMClaimFilter{gw: gw}
}

func (f *LLMClaimFilter) Filter(ctx context.Context, claims []string) ([]string, types.CostMetrics, error) {
	candidates := MarkerFilter{}.Keep(claims)
	if len(candidates) == 0 {
		return nil, nil, nil
	}
	list, _ := json.Marshal(candidates)
	prompt := fmt.Sprintf(`From this list of claims, keep only substantive factual statements.
Reject advertising, sponsor reads, discount offers and calls to action.
Return ONLY a JSON object: {"claims": [...]} using the original wording.

CLAIMS:
%s
`, list)
	var out struct {
		Claims []string `json:"claims"`
	}
	costs, err := f.gw.CompleteJSON(ctx, "filter_claims", prompt, &out)
	if err != nil {
		return nil, costs, err
	}
	return MarkerFilter{}.Keep(out.Claims), costs, nil
}

type compactResult struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Claims  []string `json:"claims,omitempty"`
}

func compactResults(results []types.SectionResult) []compactResult {
	out := make([]compactResult, 0, len(results))
	for _, r := range results {
		out = append(out, compactResult{Title: r.Title, Summary: r.Summary, Claims: r.Claims})
	}
	return out
}

func stringField(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch x := it.(type) {
		case string:
			if s := strings.TrimSpace(x); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			// models sometimes return {"name": ...} objects for entities
			if s := stringField(x["name"]); s != "" {
				out = append(out, s)
			} else if s := stringField(x["text"]); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
