package segmenter

import (
	"math"

	"transcript-insights-go/internal/types"
)

// TimeBased groups timed utterances into sections of a target duration.
type TimeBased struct {
	Params Params
}

func (TimeBased) Name() string { return StrategyTime }

// TargetDuration returns the section count and per-section duration in
// seconds for a transcript spanning total seconds.
func (t TimeBased) TargetDuration(total int) (int, int) {
	p := t.Params.WithDefaults()
	n := targetCount(float64(total),
		float64(p.MinSecondsToSplit), float64(p.TimeScaleStart), float64(p.TimeScaleEnd),
		p.MinTimeSections, p.MaxTimeSections)
	return n, int(math.Ceil(float64(total) / float64(n)))
}

func (t TimeBased) Segment(utterances []types.Utterance) []types.Section {
	if len(utterances) == 0 {
		return nil
	}
	p := t.Params.WithDefaults()
	span := newSection(utterances)
	total := span.Duration()
	n, target := t.TargetDuration(total)
	if n <= 1 || target <= 0 {
		return []types.Section{span}
	}

	var (
		out []types.Section
		cur []types.Utterance

		curStart = types.Untimed
		curEnd   = types.Untimed
	)
	for _, u := range utterances {
		cur = append(cur, u)
		if u.StartSeconds >= 0 && (curStart < 0 || u.StartSeconds < curStart) {
			curStart = u.StartSeconds
		}
		if e := uttEnd(u); e > curEnd {
			curEnd = e
		}
		if curStart >= 0 && curEnd-curStart >= target {
			out = append(out, newSection(cur))
			cur = nil
			curStart, curEnd = types.Untimed, types.Untimed
		}
	}
	if len(cur) > 0 {
		tail := newSection(cur)
		if len(out) > 0 && float64(tail.Duration()) < p.TailMergeRatio*float64(target) {
			last := out[len(out)-1]
			merged := append(append([]types.Utterance{}, last.Utterances...), cur...)
			out[len(out)-1] = newSection(merged)
		} else {
			out = append(out, tail)
		}
	}
	return out
}
