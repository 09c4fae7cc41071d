package types

import (
	"fmt"
	"strings"
)

// Untimed marks an utterance or section without a known timestamp.
const Untimed = -1

// Utterance is one speaker turn or timestamped text fragment.
type Utterance struct {
	SpeakerID    string `json:"speaker_id"`
	StartSeconds int    `json:"start_seconds"`
	EndSeconds   int    `json:"end_seconds"`
	Text         string `json:"text"`
}

// Timed reports whether the utterance carries a valid end time.
func (u Utterance) Timed() bool {
	return u.EndSeconds >= 0
}

// Word is a single word-level timestamp from the transcription vendor.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// TimedRecord is an already-timestamped transcript line, e.g. a
// platform-provided caption track.
type TimedRecord struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// Section is a contiguous run of utterances analyzed as one unit.
type Section struct {
	Utterances []Utterance `json:"utterances"`
	StartTime  int         `json:"start_time"`
	EndTime    int         `json:"end_time"`
}

// Duration is EndTime - StartTime; zero for untimed sections.
func (s Section) Duration() int {
	if s.StartTime < 0 || s.EndTime < 0 {
		return 0
	}
	return s.EndTime - s.StartTime
}

// Text joins the utterance texts with single spaces.
func (s Section) Text() string {
	parts := make([]string, 0, len(s.Utterances))
	for _, u := range s.Utterances {
		parts = append(parts, u.Text)
	}
	return strings.Join(parts, " ")
}

// Entity is a named thing mentioned in a section plus its explanation.
type Entity struct {
	Name        string `json:"name"`
	Explanation string `json:"explanation"`
}

// SectionResult is the persisted analysis of one section.
type SectionResult struct {
	StartTime string         `json:"start_time"`
	EndTime   string         `json:"end_time"`
	Title     string         `json:"title"`
	Summary   string         `json:"summary"`
	Quotes    []string       `json:"quotes"`
	Entities  []Entity       `json:"entities"`
	Claims    []string       `json:"claims"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Concept list keys exposed through SectionResult.Extra by the personas.
var ConceptKeys = []string{"key_concepts", "topics", "action_items"}

// ConceptCount is the length of the first concept list found in Extra,
// falling back to the number of claims.
func (r SectionResult) ConceptCount() int {
	for _, k := range ConceptKeys {
		if v, ok := r.Extra[k]; ok {
			switch list := v.(type) {
			case []string:
				return len(list)
			case []any:
				return len(list)
			}
		}
	}
	return len(r.Claims)
}

// SectionKey is the zero-padded persistence key for a section index.
func SectionKey(index int) string {
	return fmt.Sprintf("section_%03d", index)
}

// QuizGroup is a contiguous run of sections that feeds one quiz.
type QuizGroup struct {
	Sections           []SectionResult `json:"-"`
	QuizNumber         int             `json:"quiz_number"`
	EstimatedQuestions int             `json:"estimated_questions"`
	TotalConcepts      int             `json:"total_concepts"`
	SectionIndices     []int           `json:"section_indices"`
}

// Synthesis is the whole-document result of the meta-synthesizer.
type Synthesis struct {
	Title     string         `json:"title,omitempty"`
	Overview  string         `json:"overview,omitempty"`
	Arguments []string       `json:"arguments,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Empty reports whether nothing was synthesized.
func (s Synthesis) Empty() bool {
	return s.Title == "" && s.Overview == "" && len(s.Arguments) == 0 && len(s.Extra) == 0
}
