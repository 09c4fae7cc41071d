// Package extractor holds the external analysis capabilities the pipeline
// consumes: content analysis, entity enrichment, claim filtering and
// document-level synthesis.
package extractor

import (
	"context"

	"transcript-insights-go/internal/types"
)

// Analysis is the raw analyzer output for one section.
type Analysis struct {
	Title    string         `json:"title"`
	Summary  string         `json:"summary"`
	Quotes   []string       `json:"quotes"`
	Entities []string       `json:"entities"`
	Claims   []string       `json:"claims"`
	Extra    map[string]any `json:"-"`
}

// ContentAnalyzer analyzes one section's text. A nil Analysis with a nil
// error means the analyzer had nothing to say.
type ContentAnalyzer interface {
	Analyze(ctx context.Context, text string) (*Analysis, types.CostMetrics, error)
}

// EntityEnricher explains entity names in the context of a section.
type EntityEnricher interface {
	Enrich(ctx context.Context, names []string, sectionText string) (map[string]string, types.CostMetrics, error)
}

// ClaimFilter drops promotional or sponsor claims.
type ClaimFilter interface {
	Filter(ctx context.Context, claims []string) ([]string, types.CostMetrics, error)
}

// MetaAnalyzer synthesizes across many section results.
type MetaAnalyzer interface {
	// Synthesize is the single-pass shape over every result.
	Synthesize(ctx context.Context, results []types.SectionResult) (types.Synthesis, types.CostMetrics, error)
	// SummarizeChunk is the map step over a contiguous chunk.
	SummarizeChunk(ctx context.Context, chunk []types.SectionResult) (string, types.CostMetrics, error)
	// FinalStructure is the reduce step over chunk summaries.
	FinalStructure(ctx context.Context, summaries []string) (types.Synthesis, types.CostMetrics, error)
}

// Suite bundles the capabilities for one persona.
type Suite struct {
	Persona  Persona
	Analyzer ContentAnalyzer
	Enricher EntityEnricher
	Claims   ClaimFilter
	Meta     MetaAnalyzer
}
