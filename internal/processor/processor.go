// Package processor analyzes one section at a time. Each call ends in
// exactly one outcome and never lets a failure escape to its siblings.
package processor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"transcript-insights-go/internal/extractor"
	"transcript-insights-go/internal/logger"
	"transcript-insights-go/internal/store"
	"transcript-insights-go/internal/timeutil"
	"transcript-insights-go/internal/types"
)

// ErrSectionProcessing wraps whatever turned a section into a Failed outcome.
var ErrSectionProcessing = errors.New("section processing failed")

// Outcome is how a section's processing ended.
type Outcome int

const (
	Completed Outcome = iota
	// Reused means a persisted result already existed for the section key.
	Reused
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Reused:
		return "reused"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ReasonNoData marks a section the analyzer had nothing to say about.
const ReasonNoData = "no_data"

// Result is the outcome of one section.
type Result struct {
	Index    int
	Outcome  Outcome
	Section  *types.SectionResult
	Reason   string
	Err      error
	Costs    types.CostMetrics
	Duration time.Duration
}

type Processor struct {
	suite    *extractor.Suite
	sections store.SectionStore
	log      *logger.Logger
}

func New(suite *extractor.Suite, sections store.SectionStore) *Processor {
	return &Processor{suite: suite, sections: sections, log: logger.Component("section-processor")}
}

// Process runs the idempotency check, analysis, claim policy, entity
// enrichment and persistence for section index of job jobID.
func (p *Processor) Process(ctx context.Context, jobID string, index int, sec types.Section) (res Result) {
	start := time.Now()
	log := p.log.WithSection(jobID, index)
	res = Result{Index: index, Costs: types.CostMetrics{}}

	defer func() {
		if r := recover(); r != nil {
			log.WithField("stack", string(debug.Stack())).Errorf("section panicked: %v", r)
			res.Outcome, res.Section = Failed, nil
			res.Err = fmt.Errorf("%w: section %d: panic: %v", ErrSectionProcessing, index, r)
		}
		res.Duration = time.Since(start)
		entry := log.WithField("outcome", res.Outcome.String()).WithField("duration_ms", res.Duration.Milliseconds())
		if res.Err != nil {
			entry.WithField("error", res.Err.Error()).Warn("section finished")
		} else {
			entry.Info("section finished")
		}
	}()

	key := types.SectionKey(index)
	existing, err := p.sections.GetSection(ctx, jobID, key)
	switch {
	case err == nil:
		res.Outcome, res.Section = Reused, existing
		return res
	case !errors.Is(err, store.ErrNotFound):
		return p.fail(res, fmt.Errorf("lookup %s: %w", key, err))
	}

	text := sec.Text()
	analysis, costs, err := p.suite.Analyzer.Analyze(ctx, text)
	res.Costs.Merge(costs)
	if err != nil {
		log.WithField("error", err.Error()).Warn("analyzer failed, treating section as no data")
		analysis = nil
	}
	if analysis == nil {
		res.Outcome, res.Reason = Skipped, ReasonNoData
		return res
	}

	claims, costs, err := extractor.ApplyClaimPolicy(ctx, p.suite.Persona, p.suite.Claims, analysis.Claims)
	res.Costs.Merge(costs)
	if err != nil {
		log.WithField("error", err.Error()).Warn("claim filter failed, dropping claims")
		claims = nil
	}

	names := extractor.FilterEntities(analysis.Entities)
	explanations := map[string]string{}
	if len(names) > 0 && p.suite.Enricher != nil {
		got, costs, err := p.suite.Enricher.Enrich(ctx, names, text)
		res.Costs.Merge(costs)
		if err != nil {
			log.WithField("error", err.Error()).Warn("entity enrichment failed")
		} else {
			explanations = got
		}
	}
	entities := make([]types.Entity, 0, len(names))
	for _, n := range names {
		entities = append(entities, types.Entity{Name: n, Explanation: explanations[n]})
	}

	result := types.SectionResult{
		StartTime: timeutil.FormatTimestamp(sec.StartTime),
		EndTime:   timeutil.FormatTimestamp(sec.EndTime),
		Title:     analysis.Title,
		Summary:   analysis.Summary,
		Quotes:    analysis.Quotes,
		Entities:  entities,
		Claims:    claims,
		Extra:     analysis.Extra,
	}
	if err := p.sections.PutSection(ctx, jobID, key, result); err != nil {
		return p.fail(res, fmt.Errorf("persist %s: %w", key, err))
	}
	res.Outcome, res.Section = Completed, &result
	return res
}

func (p *Processor) fail(res Result, err error) Result {
	res.Outcome, res.Section = Failed, nil
	res.Err = fmt.Errorf("%w: section %d: %w", ErrSectionProcessing, res.Index, err)
	return res
}
