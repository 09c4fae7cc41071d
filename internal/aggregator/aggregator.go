// Package aggregator accumulates run-level costs and stage timings and
// folds per-section outcomes into the ordered document view.
package aggregator

import (
	"sync"
	"time"

	"transcript-insights-go/internal/processor"
	"transcript-insights-go/internal/types"
)

// Run collects the counters and stage timings of one pipeline run.
type Run struct {
	mu      sync.Mutex
	costs   types.CostMetrics
	timings types.TimingMetrics
}

func NewRun() *Run {
	return &Run{costs: types.CostMetrics{}}
}

func (r *Run) AddCosts(c types.CostMetrics) {
	r.mu.Lock()
	r.costs.Merge(c)
	r.mu.Unlock()
}

// Record appends one stage duration.
func (r *Run) Record(stage string, d time.Duration) {
	r.mu.Lock()
	r.timings = append(r.timings, types.TimingStage{Stage: stage, Seconds: d.Seconds()})
	r.mu.Unlock()
}

// Time starts a stage clock; calling the returned func records it.
func (r *Run) Time(stage string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		r.Record(stage, d)
		return d
	}
}

func (r *Run) Costs() types.CostMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := types.CostMetrics{}
	out.Merge(r.costs)
	return out
}

func (r *Run) Timings() types.TimingMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(types.TimingMetrics(nil), r.timings...)
}

// Sections is the ordered fold of every section outcome.
type Sections struct {
	Results []types.SectionResult
	// Indices maps each entry of Results back to its section index.
	Indices  []int
	Failed   []int
	Skipped  []int
	Outcomes map[string]int
}

// Fold keeps results in section order and merges every section's costs,
// including failed ones, into run.
func Fold(results []processor.Result, run *Run) Sections {
	out := Sections{Outcomes: map[string]int{}}
	for _, res := range results {
		out.Outcomes[res.Outcome.String()]++
		if run != nil {
			run.AddCosts(res.Costs)
		}
		switch res.Outcome {
		case processor.Completed, processor.Reused:
			if res.Section != nil {
				out.Results = append(out.Results, *res.Section)
				out.Indices = append(out.Indices, res.Index)
			}
		case processor.Skipped:
			out.Skipped = append(out.Skipped, res.Index)
		case processor.Failed:
			out.Failed = append(out.Failed, res.Index)
		}
	}
	return out
}
