package segmenter

import (
	"fmt"

	"transcript-insights-go/internal/types"
)

// Select picks a strategy from the transcript shape:
//  1. word timestamps plus a single utterance longer than
//     MonologueMinWords words: Monologue
//  2. any utterance with a valid end time: TimeBased
//  3. otherwise: WordCount
func Select(utterances []types.Utterance, words []types.Word, p Params) Strategy {
	p = p.WithDefaults()
	if len(words) > 0 && len(utterances) == 1 && wordCount(utterances[0].Text) > p.MonologueMinWords {
		return Monologue{Params: p, Words: words}
	}
	for _, u := range utterances {
		if u.Timed() {
			return TimeBased{Params: p}
		}
	}
	return WordCount{Params: p}
}

// ByName forces a strategy. "" and "auto" defer to Select.
func ByName(name string, utterances []types.Utterance, words []types.Word, p Params) (Strategy, error) {
	p = p.WithDefaults()
	switch name {
	case "", "auto":
		return Select(utterances, words, p), nil
	case StrategyFixedWordCount:
		return FixedWordCount{Params: p}, nil
	case StrategyWordCount:
		return WordCount{Params: p}, nil
	case StrategyTime:
		return TimeBased{Params: p}, nil
	case StrategyMonologue:
		return Monologue{Params: p, Words: words}, nil
	}
	return nil, fmt.Errorf("unknown segmentation strategy %q", name)
}
