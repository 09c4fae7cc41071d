package segmenter

import (
	"math"
	"strings"
	"unicode/utf8"

	"transcript-insights-go/internal/types"
)

// WordCount splits untimed text into near-equal word chunks. Every section
// keeps the untimed sentinel.
type WordCount struct {
	Params Params
}

func (WordCount) Name() string { return StrategyWordCount }

// TargetSections is the section count for a text of the given length.
func (w WordCount) TargetSections(chars int) int {
	p := w.Params.WithDefaults()
	estimated := float64(chars) / p.CharsPerWord
	return targetCount(estimated,
		float64(p.MinWordsToSplit), float64(p.WordScaleStart), float64(p.WordScaleEnd),
		p.MinWordSections, p.MaxWordSections)
}

func (w WordCount) Segment(utterances []types.Utterance) []types.Section {
	speaker, text := joinUtterances(utterances)
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	target := w.TargetSections(utf8.RuneCountInString(text))
	return chunkWords(words, speaker, int(math.Ceil(float64(len(words))/float64(target))))
}

// FixedWordCount splits untimed text into chunks of exactly
// FixedSectionWords words; only the last chunk may be shorter.
type FixedWordCount struct {
	Params Params
}

func (FixedWordCount) Name() string { return StrategyFixedWordCount }

func (f FixedWordCount) Segment(utterances []types.Utterance) []types.Section {
	speaker, text := joinUtterances(utterances)
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	return chunkWords(words, speaker, f.Params.WithDefaults().FixedSectionWords)
}

func joinUtterances(utterances []types.Utterance) (speaker, text string) {
	parts := make([]string, 0, len(utterances))
	for _, u := range utterances {
		if speaker == "" {
			speaker = u.SpeakerID
		}
		parts = append(parts, u.Text)
	}
	return speaker, strings.Join(parts, " ")
}

func chunkWords(words []string, speaker string, perSection int) []types.Section {
	out := make([]types.Section, 0, len(words)/perSection+1)
	for i := 0; i < len(words); i += perSection {
		end := min(i+perSection, len(words))
		out = append(out, types.Section{
			Utterances: []types.Utterance{{
				SpeakerID:    speaker,
				StartSeconds: types.Untimed,
				EndSeconds:   types.Untimed,
				Text:         strings.Join(words[i:end], " "),
			}},
			StartTime: types.Untimed,
			EndTime:   types.Untimed,
		})
	}
	return out
}
