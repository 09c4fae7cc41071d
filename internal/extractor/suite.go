package extractor

import (
	"time"

	"transcript-insights-go/internal/logger"
	"transcript-insights-go/internal/retry"
)

// Options selects live or mocked collaborators for a Suite.
type Options struct {
	Gateway       GatewayConfig
	UseMockLLM    bool
	SearchURL     string
	SearchTimeout time.Duration
	UseMockSearch bool
	Retry         retry.Policy
}

// NewSuite builds the capabilities for persona p. A live gateway that is
// not configured falls back to the heuristic implementations.
func NewSuite(p Persona, o Options) *Suite {
	log := logger.Component("extractor")
	h := NewHeuristic(p)
	s := &Suite{Persona: p, Analyzer: h, Enricher: h, Claims: h, Meta: h}

	if !o.UseMockLLM {
		gw, err := NewGateway(o.Gateway, o.Retry)
		if err != nil {
			log.WithError(err).Warn("llm gateway unavailable, using heuristic analyzer")
		} else {
			a := NewLLMAnalyzer(gw, p)
			s.Analyzer, s.Meta, s.Claims = a, a, NewLLMClaimFilter(gw)
		}
	}
	if !o.UseMockSearch {
		se, err := NewSearchEnricher(o.SearchURL, o.SearchTimeout, o.Retry)
		if err != nil {
			log.WithError(err).Warn("search API unavailable, using heuristic enricher")
		} else {
			s.Enricher = se
		}
	}
	log.WithField("persona", p.Name()).Info("extractor suite ready")
	return s
}
