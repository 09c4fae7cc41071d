// Package synthesis reduces many section results into one document-level
// synthesis, either in a single pass or through a chunked map-reduce.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"transcript-insights-go/internal/extractor"
	"transcript-insights-go/internal/logger"
	"transcript-insights-go/internal/types"
)

// ErrSynthesis marks a failed synthesis. Callers downgrade it to an empty
// Synthesis; it never fails a run.
var ErrSynthesis = errors.New("synthesis failed")

// Shape names which synthesis path ran.
type Shape string

const (
	ShapeNone      Shape = "none"
	ShapeDirect    Shape = "direct"
	ShapeMapReduce Shape = "map_reduce"
)

type Config struct {
	// DirectMax is the largest section count synthesized in one pass.
	DirectMax int `yaml:"direct_synthesis_max"`
	ChunkSize int `yaml:"map_chunk_size"`
}

func (c Config) withDefaults() Config {
	if c.DirectMax <= 0 {
		c.DirectMax = 5
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 5
	}
	return c
}

type Synthesizer struct {
	meta extractor.MetaAnalyzer
	cfg  Config
	log  *logger.Logger
}

func New(meta extractor.MetaAnalyzer, cfg Config) *Synthesizer {
	return &Synthesizer{meta: meta, cfg: cfg.withDefaults(), log: logger.Component("synthesis")}
}

// Synthesize picks the direct path for small documents and map-reduce
// otherwise. An all-failed map phase yields an empty Synthesis and no error.
func (s *Synthesizer) Synthesize(ctx context.Context, results []types.SectionResult) (types.Synthesis, Shape, types.CostMetrics, error) {
	costs := types.CostMetrics{}
	if len(results) == 0 {
		return types.Synthesis{}, ShapeNone, costs, nil
	}
	if len(results) <= s.cfg.DirectMax {
		out, c, err := s.meta.Synthesize(ctx, results)
		costs.Merge(c)
		if err != nil {
			return types.Synthesis{}, ShapeDirect, costs, fmt.Errorf("%w: direct: %w", ErrSynthesis, err)
		}
		return out, ShapeDirect, costs, nil
	}
	out, err := s.mapReduce(ctx, results, costs)
	return out, ShapeMapReduce, costs, err
}

// Chunks partitions results into contiguous runs of size.
func Chunks(results []types.SectionResult, size int) [][]types.SectionResult {
	if size <= 0 {
		size = 1
	}
	var out [][]types.SectionResult
	for i := 0; i < len(results); i += size {
		out = append(out, results[i:min(i+size, len(results))])
	}
	return out
}

func (s *Synthesizer) mapReduce(ctx context.Context, results []types.SectionResult, costs types.CostMetrics) (types.Synthesis, error) {
	chunks := Chunks(results, s.cfg.ChunkSize)
	s.log.WithField("chunks", len(chunks)).WithField("sections", len(results)).Info("starting map phase")

	summaries := make([]string, len(chunks))
	chunkCosts := make([]types.CostMetrics, len(chunks))

	// Chunk failures are dropped, so no goroutine returns an error.
	var g errgroup.Group
	for i, chunk := range chunks {
		g.Go(func() error {
			summary, c, err := s.meta.SummarizeChunk(ctx, chunk)
			chunkCosts[i] = c
			if err != nil {
				s.log.WithField("chunk", i).WithField("error", err.Error()).Warn("chunk summary failed, dropping")
				return nil
			}
			summaries[i] = strings.TrimSpace(summary)
			return nil
		})
	}
	_ = g.Wait()

	var surviving []string
	for i, sum := range summaries {
		costs.Merge(chunkCosts[i])
		if sum != "" {
			surviving = append(surviving, sum)
		}
	}
	if len(surviving) == 0 {
		s.log.Warn("no chunk summaries survived, skipping reduce")
		return types.Synthesis{}, nil
	}

	s.log.WithField("summaries", len(surviving)).Info("running reduce phase")
	out, c, err := s.meta.FinalStructure(ctx, surviving)
	costs.Merge(c)
	if err != nil {
		return types.Synthesis{}, fmt.Errorf("%w: reduce: %w", ErrSynthesis, err)
	}
	return out, nil
}
