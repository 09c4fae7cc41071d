// Package normalizer turns heterogeneous transcript input into the canonical
// utterance sequence every segmenter consumes.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"transcript-insights-go/internal/timeutil"
	"transcript-insights-go/internal/types"
)

// ErrNormalization is returned when input is empty or unusable.
var ErrNormalization = errors.New("normalization failed")

const (
	// DefaultSpeaker labels timestamped lines without a speaker prefix.
	DefaultSpeaker = "Speaker"
	// NarratorSpeaker labels untimed prose.
	NarratorSpeaker = "Narrator"
	// RecordSpeaker is assigned to platform records, which carry no diarization.
	RecordSpeaker = "Speaker 1"
)

const tsPattern = `[\[\(]?(\d{1,2}:\d{2}(?::\d{2})?)[\]\)]?(?:\s*-\s*[\[\(]?(\d{1,2}:\d{2}(?::\d{2})?)[\]\)]?)?`

var (
	speakerFirst = regexp.MustCompile(`^\s*([A-Za-z][\w .'\-]{0,40}):\s+` + tsPattern + `\s*[:\-]?\s*(.*)$`)
	stampFirst   = regexp.MustCompile(`^\s*` + tsPattern + `\s*[:\-]?\s*(.*)$`)
	speakerLabel = regexp.MustCompile(`^([A-Za-z][\w .'\-]{0,40}):\s+(.*)$`)
)

// Input is one raw transcript. Records win over Text when both are set.
type Input struct {
	Text    string
	Records []types.TimedRecord
}

// Normalize converts in into ordered utterances.
func Normalize(in Input) ([]types.Utterance, error) {
	if len(in.Records) > 0 {
		return FromRecords(in.Records)
	}
	return FromText(in.Text)
}

// FromText parses free text. A JSON array of {start, duration, text}
// records is accepted too, so pasted caption exports round-trip.
func FromText(raw string) ([]types.Utterance, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty input", ErrNormalization)
	}
	if strings.HasPrefix(trimmed, "[") {
		var recs []types.TimedRecord
		if err := json.Unmarshal([]byte(trimmed), &recs); err == nil && len(recs) > 0 {
			return FromRecords(recs)
		}
	}

	out := parseTimestamped(trimmed)
	if len(out) > 0 {
		return out, nil
	}

	text := strings.Join(strings.Fields(trimmed), " ")
	return []types.Utterance{{
		SpeakerID:    NarratorSpeaker,
		StartSeconds: types.Untimed,
		EndSeconds:   types.Untimed,
		Text:         text,
	}}, nil
}

// FromRecords converts already-timestamped records.
func FromRecords(recs []types.TimedRecord) ([]types.Utterance, error) {
	out := make([]types.Utterance, 0, len(recs))
	for _, r := range recs {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		start := int(math.Floor(r.Start))
		end := int(math.Floor(r.Start + r.Duration))
		if end < start {
			end = start
		}
		out = append(out, types.Utterance{
			SpeakerID:    RecordSpeaker,
			StartSeconds: start,
			EndSeconds:   end,
			Text:         text,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no usable records", ErrNormalization)
	}
	return out, nil
}

type pending struct {
	utt      types.Utterance
	explicit bool // end time came from a range
	lines    []string
}

func parseTimestamped(raw string) []types.Utterance {
	var (
		items    []*pending
		preamble []string
	)
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if p, ok := matchLine(line); ok {
			items = append(items, p)
			continue
		}
		if len(items) == 0 {
			preamble = append(preamble, line)
			continue
		}
		cur := items[len(items)-1]
		cur.lines = append(cur.lines, line)
	}
	if len(items) == 0 {
		return nil
	}
	if len(preamble) > 0 {
		items[0].lines = append(preamble, items[0].lines...)
	}

	out := make([]types.Utterance, 0, len(items))
	for i, p := range items {
		if !p.explicit {
			p.utt.EndSeconds = p.utt.StartSeconds
			if i+1 < len(items) && items[i+1].utt.StartSeconds > p.utt.StartSeconds {
				p.utt.EndSeconds = items[i+1].utt.StartSeconds
			}
		}
		p.utt.Text = strings.TrimSpace(strings.Join(p.lines, " "))
		if p.utt.Text == "" {
			continue
		}
		out = append(out, p.utt)
	}
	return out
}

func matchLine(line string) (*pending, bool) {
	var speaker, start, end, rest string
	if m := speakerFirst.FindStringSubmatch(line); m != nil {
		speaker, start, end, rest = m[1], m[2], m[3], m[4]
	} else if m := stampFirst.FindStringSubmatch(line); m != nil {
		start, end, rest = m[1], m[2], m[3]
		if sm := speakerLabel.FindStringSubmatch(rest); sm != nil {
			speaker, rest = sm[1], sm[2]
		}
	} else {
		return nil, false
	}
	startSec, err := timeutil.ParseTimestamp(start)
	if err != nil {
		return nil, false
	}
	p := &pending{utt: types.Utterance{SpeakerID: DefaultSpeaker, StartSeconds: startSec}}
	if s := strings.TrimSpace(speaker); s != "" {
		p.utt.SpeakerID = s
	}
	if end != "" {
		if endSec, err := timeutil.ParseTimestamp(end); err == nil && endSec >= startSec {
			p.utt.EndSeconds = endSec
			p.explicit = true
		}
	}
	if rest = strings.TrimSpace(rest); rest != "" {
		p.lines = append(p.lines, rest)
	}
	return p, true
}
