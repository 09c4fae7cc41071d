// Package quiz plans how many quizzes a document warrants and which
// contiguous sections feed each one.
package quiz

import "transcript-insights-go/internal/types"

type Config struct {
	MinQuestions      int `yaml:"min_questions"`
	MaxQuestions      int `yaml:"max_questions"`
	RichnessThreshold int `yaml:"richness_threshold"`
	MinGroupConcepts  int `yaml:"min_group_concepts"`
	MaxGroups         int `yaml:"max_groups"`
}

func DefaultConfig() Config {
	return Config{MinQuestions: 3, MaxQuestions: 10, RichnessThreshold: 5, MinGroupConcepts: 3, MaxGroups: 3}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinQuestions <= 0 {
		c.MinQuestions = d.MinQuestions
	}
	if c.MaxQuestions < c.MinQuestions {
		c.MaxQuestions = max(d.MaxQuestions, c.MinQuestions)
	}
	if c.RichnessThreshold <= 0 {
		c.RichnessThreshold = d.RichnessThreshold
	}
	if c.MinGroupConcepts <= 0 {
		c.MinGroupConcepts = d.MinGroupConcepts
	}
	if c.MaxGroups <= 0 {
		c.MaxGroups = d.MaxGroups
	}
	return c
}

// Richness scores a section as 2*concepts + entities + quotes.
func Richness(r types.SectionResult) int {
	return 2*r.ConceptCount() + len(r.Entities) + len(r.Quotes)
}

// PotentialQuestions is how many questions one section can support.
func PotentialQuestions(r types.SectionResult) int {
	return r.ConceptCount() + min(len(r.Entities), 2)
}

// GroupCount decides the target number of quizzes.
func (c Config) GroupCount(results []types.SectionResult) int {
	c = c.withDefaults()
	substantial := 0
	for _, r := range results {
		if Richness(r) > c.RichnessThreshold {
			substantial++
		}
	}
	n := len(results)
	var groups int
	switch {
	case n <= 3 || substantial <= 2:
		groups = 1
	case n <= 8 || substantial <= 5:
		groups = 2
	default:
		groups = 3
	}
	return max(1, min(groups, c.MaxGroups, n))
}

// Plan splits results into contiguous near-equal groups, folds groups with
// too few concepts into a neighbour and numbers the survivors from 1.
func Plan(results []types.SectionResult, cfg Config) []types.QuizGroup {
	if len(results) == 0 {
		return nil
	}
	cfg = cfg.withDefaults()
	n := cfg.GroupCount(results)

	spans := make([][2]int, 0, n)
	base, extra := len(results)/n, len(results)%n
	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < extra {
			size++
		}
		spans = append(spans, [2]int{start, start + size})
		start += size
	}

	concepts := func(s [2]int) int {
		total := 0
		for _, r := range results[s[0]:s[1]] {
			total += r.ConceptCount()
		}
		return total
	}
	for i := 0; i < len(spans) && len(spans) > 1; {
		if concepts(spans[i]) >= cfg.MinGroupConcepts {
			i++
			continue
		}
		if i+1 < len(spans) {
			spans[i+1][0] = spans[i][0]
			spans = append(spans[:i], spans[i+1:]...)
		} else {
			spans[i-1][1] = spans[i][1]
			spans = spans[:i]
		}
	}

	out := make([]types.QuizGroup, 0, len(spans))
	for i, s := range spans {
		g := types.QuizGroup{QuizNumber: i + 1, Sections: results[s[0]:s[1]]}
		potential := 0
		for idx := s[0]; idx < s[1]; idx++ {
			g.SectionIndices = append(g.SectionIndices, idx)
			g.TotalConcepts += results[idx].ConceptCount()
			potential += PotentialQuestions(results[idx])
		}
		g.EstimatedQuestions = max(cfg.MinQuestions, min(cfg.MaxQuestions, potential))
		out = append(out, g)
	}
	return out
}
