package segmenter

import (
	"math"
	"strings"

	"transcript-insights-go/internal/types"
)

// Monologue windows word-level timestamps of a single long speaker turn.
// Section bounds come from the first and last word of each window.
type Monologue struct {
	Params Params
	Words  []types.Word
}

func (Monologue) Name() string { return StrategyMonologue }

func (m Monologue) Segment(utterances []types.Utterance) []types.Section {
	if len(m.Words) == 0 {
		return TimeBased{Params: m.Params}.Segment(utterances)
	}
	p := m.Params.WithDefaults()
	speaker := ""
	if len(utterances) > 0 {
		speaker = utterances[0].SpeakerID
	}

	out := make([]types.Section, 0, len(m.Words)/p.MonologueWindowWords+1)
	for i := 0; i < len(m.Words); i += p.MonologueWindowWords {
		window := m.Words[i:min(i+p.MonologueWindowWords, len(m.Words))]
		texts := make([]string, 0, len(window))
		for _, w := range window {
			if t := strings.TrimSpace(w.Text); t != "" {
				texts = append(texts, t)
			}
		}
		if len(texts) == 0 {
			continue
		}
		start := int(math.Floor(window[0].Start))
		end := int(math.Ceil(window[len(window)-1].End))
		if end < start {
			end = start
		}
		out = append(out, types.Section{
			Utterances: []types.Utterance{{
				SpeakerID:    speaker,
				StartSeconds: start,
				EndSeconds:   end,
				Text:         strings.Join(texts, " "),
			}},
			StartTime: start,
			EndTime:   end,
		})
	}
	return out
}
