package extractor

import (
	"fmt"
	"strings"
)

// ClaimPolicy decides how candidate claims become section claims.
type ClaimPolicy int

const (
	// ClaimsFirstVerbatim keeps only the first candidate, unfiltered.
	ClaimsFirstVerbatim ClaimPolicy = iota
	// ClaimsFiltered runs candidates through the promotional filter.
	ClaimsFiltered
)

// Persona is the closed set of analysis styles. It is chosen once per job
// when the pipeline is built.
type Persona interface {
	Name() string
	ClaimPolicy() ClaimPolicy
	// ConceptKey names the persona-specific concept list in SectionResult.Extra.
	ConceptKey() string
	Focus() string
	persona()
}

type Lecture struct{}

func (Lecture) Name() string             { return "lecture" }
func (Lecture) ClaimPolicy() ClaimPolicy { return ClaimsFiltered }
func (Lecture) ConceptKey() string       { return "key_concepts" }
func (Lecture) Focus() string {
	return "a student reviewing a lecture: definitions, key concepts and the reasoning that connects them"
}
func (Lecture) persona() {}

type Podcast struct{}

func (Podcast) Name() string             { return "podcast" }
func (Podcast) ClaimPolicy() ClaimPolicy { return ClaimsFiltered }
func (Podcast) ConceptKey() string       { return "topics" }
func (Podcast) Focus() string {
	return "a listener catching up on a podcast episode: topics, arguments and memorable quotes, ignoring sponsor reads"
}
func (Podcast) persona() {}

type Meeting struct{}

func (Meeting) Name() string             { return "meeting" }
func (Meeting) ClaimPolicy() ClaimPolicy { return ClaimsFirstVerbatim }
func (Meeting) ConceptKey() string       { return "action_items" }
func (Meeting) Focus() string {
	return "a team member who missed a meeting: decisions, owners and action items"
}
func (Meeting) persona() {}

// Personas lists every persona in a stable order.
func Personas() []Persona {
	return []Persona{Lecture{}, Podcast{}, Meeting{}}
}

// ParsePersona resolves a persona name; empty means Lecture.
func ParsePersona(name string) (Persona, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Lecture{}, nil
	}
	for _, p := range Personas() {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown persona %q", name)
}
