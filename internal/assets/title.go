// Package assets derives the presentable outputs of a run: the document
// title and an XLSX workbook of the analysis.
package assets

import (
	"strings"

	"transcript-insights-go/internal/types"
)

// DefaultTitle is used when neither synthesis nor sections offer a title.
const DefaultTitle = "Untitled Transcript"

// Title prefers the synthesis title, then the first titled section.
func Title(syn types.Synthesis, results []types.SectionResult) string {
	if t := strings.TrimSpace(syn.Title); t != "" && !syn.Empty() {
		return t
	}
	for _, r := range results {
		if t := strings.TrimSpace(r.Title); t != "" {
			return t
		}
	}
	return DefaultTitle
}
