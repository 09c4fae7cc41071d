// Package segmenter splits a canonical transcript into analyzable sections.
//
// Every strategy returns sections that are contiguous and exhaustive over its
// input and never empty. Section counts scale with content density through a
// linear interpolation between configured bounds.
package segmenter

import (
	"math"
	"strings"

	"transcript-insights-go/internal/types"
)

// Strategy names, recorded on the run document.
const (
	StrategyFixedWordCount = "word_count"
	StrategyWordCount      = "dynamic_word_count"
	StrategyTime           = "time_based"
	StrategyMonologue      = "monologue_word_timestamp"
)

// Strategy is one interchangeable segmentation algorithm.
type Strategy interface {
	Name() string
	Segment(utterances []types.Utterance) []types.Section
}

// Params tunes every strategy and the selector.
type Params struct {
	CharsPerWord    float64 `yaml:"chars_per_word"`
	MinWordsToSplit int     `yaml:"min_words_to_split"`
	WordScaleStart  int     `yaml:"word_scale_start"`
	WordScaleEnd    int     `yaml:"word_scale_end"`
	MinWordSections int     `yaml:"min_word_sections"`
	MaxWordSections int     `yaml:"max_word_sections"`

	FixedSectionWords int `yaml:"fixed_section_words"`

	MinSecondsToSplit int     `yaml:"min_seconds_to_split"`
	TimeScaleStart    int     `yaml:"time_scale_start"`
	TimeScaleEnd      int     `yaml:"time_scale_end"`
	MinTimeSections   int     `yaml:"min_time_sections"`
	MaxTimeSections   int     `yaml:"max_time_sections"`
	TailMergeRatio    float64 `yaml:"tail_merge_ratio"`

	MonologueMinWords    int `yaml:"monologue_min_words"`
	MonologueWindowWords int `yaml:"monologue_window_words"`
}

// DefaultParams returns the production tuning.
func DefaultParams() Params {
	return Params{
		CharsPerWord:    5,
		MinWordsToSplit: 500,
		WordScaleStart:  1500,
		WordScaleEnd:    15000,
		MinWordSections: 1,
		MaxWordSections: 10,

		FixedSectionWords: 1000,

		MinSecondsToSplit: 600,
		TimeScaleStart:    1800,
		TimeScaleEnd:      10800,
		MinTimeSections:   3,
		MaxTimeSections:   10,
		TailMergeRatio:    0.5,

		MonologueMinWords:    150,
		MonologueWindowWords: 750,
	}
}

// WithDefaults fills zero fields from DefaultParams.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.CharsPerWord <= 0 {
		p.CharsPerWord = d.CharsPerWord
	}
	if p.MinWordsToSplit <= 0 {
		p.MinWordsToSplit = d.MinWordsToSplit
	}
	if p.WordScaleStart <= 0 {
		p.WordScaleStart = d.WordScaleStart
	}
	if p.WordScaleEnd <= p.WordScaleStart {
		p.WordScaleEnd = max(d.WordScaleEnd, p.WordScaleStart+1)
	}
	if p.MinWordSections <= 0 {
		p.MinWordSections = d.MinWordSections
	}
	if p.MaxWordSections < p.MinWordSections {
		p.MaxWordSections = max(d.MaxWordSections, p.MinWordSections)
	}
	if p.FixedSectionWords <= 0 {
		p.FixedSectionWords = d.FixedSectionWords
	}
	if p.MinSecondsToSplit <= 0 {
		p.MinSecondsToSplit = d.MinSecondsToSplit
	}
	if p.TimeScaleStart <= 0 {
		p.TimeScaleStart = d.TimeScaleStart
	}
	if p.TimeScaleEnd <= p.TimeScaleStart {
		p.TimeScaleEnd = max(d.TimeScaleEnd, p.TimeScaleStart+1)
	}
	if p.MinTimeSections <= 0 {
		p.MinTimeSections = d.MinTimeSections
	}
	if p.MaxTimeSections < p.MinTimeSections {
		p.MaxTimeSections = max(d.MaxTimeSections, p.MinTimeSections)
	}
	if p.TailMergeRatio <= 0 || p.TailMergeRatio >= 1 {
		p.TailMergeRatio = d.TailMergeRatio
	}
	if p.MonologueMinWords <= 0 {
		p.MonologueMinWords = d.MonologueMinWords
	}
	if p.MonologueWindowWords <= 0 {
		p.MonologueWindowWords = d.MonologueWindowWords
	}
	return p
}

// targetCount maps a content size onto a section count: 1 below minTotal,
// minCount up to scaleStart, maxCount from scaleEnd, linear (rounded up)
// in between.
func targetCount(total, minTotal, scaleStart, scaleEnd float64, minCount, maxCount int) int {
	switch {
	case total < minTotal:
		return 1
	case total <= scaleStart:
		return minCount
	case total >= scaleEnd:
		return maxCount
	}
	frac := (total - scaleStart) / (scaleEnd - scaleStart)
	n := int(math.Ceil(float64(minCount) + frac*float64(maxCount-minCount)))
	if n > maxCount {
		n = maxCount
	}
	if n < 1 {
		n = 1
	}
	return n
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// uttEnd is the best known end time of u, never before its start.
func uttEnd(u types.Utterance) int {
	if u.EndSeconds >= u.StartSeconds {
		return u.EndSeconds
	}
	return u.StartSeconds
}

func newSection(utts []types.Utterance) types.Section {
	s := types.Section{Utterances: utts, StartTime: types.Untimed, EndTime: types.Untimed}
	for _, u := range utts {
		if u.StartSeconds >= 0 && (s.StartTime < 0 || u.StartSeconds < s.StartTime) {
			s.StartTime = u.StartSeconds
		}
		if e := uttEnd(u); e > s.EndTime {
			s.EndTime = e
		}
	}
	return s
}
