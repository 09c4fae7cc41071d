// Package dataset reads batch manifests: one spreadsheet row per job.
package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"transcript-insights-go/internal/logger"
	"transcript-insights-go/internal/types"
)

// Row is one requested job from a manifest.
type Row struct {
	Line         int              `json:"line"`
	Persona      string           `json:"persona,omitempty"`
	Kind         types.SourceKind `json:"source_kind"`
	AudioURL     string           `json:"audio_url,omitempty"`
	Text         string           `json:"text,omitempty"`
	ArtifactPath string           `json:"artifact_path,omitempty"`
	Credits      float64          `json:"pre_authorized_credits,omitempty"`
}

type columns struct {
	audio, text, persona, artifact, credits int
}

// detectColumns maps headers to fields by keyword.
func detectColumns(header []string) columns {
	c := columns{-1, -1, -1, -1, -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case c.audio == -1 && (strings.Contains(l, "audio") || strings.Contains(l, "recording") || strings.Contains(l, "url")):
			c.audio = i
		case c.text == -1 && (strings.Contains(l, "transcript") || strings.Contains(l, "text")):
			c.text = i
		case c.persona == -1 && (strings.Contains(l, "persona") || strings.Contains(l, "type")):
			c.persona = i
		case c.artifact == -1 && (strings.Contains(l, "artifact") || strings.Contains(l, "upload") || strings.Contains(l, "file")):
			c.artifact = i
		case c.credits == -1 && (strings.Contains(l, "credit") || strings.Contains(l, "budget")):
			c.credits = i
		}
	}
	return c
}

func cell(r []string, idx int) string {
	if idx < 0 || idx >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[idx])
}

// Load reads the first sheet of path. Rows with neither an http(s) audio
// URL nor transcript text are skipped.
func Load(path string) ([]Row, error) {
	log := logger.Component("dataset").WithField("path", path)
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	cols := detectColumns(rows[0])
	if cols.audio == -1 && cols.text == -1 {
		return nil, fmt.Errorf("manifest has neither an audio nor a transcript column")
	}

	var out []Row
	skipped := 0
	for i, r := range rows[1:] {
		row := Row{
			Line:         i + 2,
			Persona:      strings.ToLower(cell(r, cols.persona)),
			AudioURL:     cell(r, cols.audio),
			Text:         cell(r, cols.text),
			ArtifactPath: cell(r, cols.artifact),
		}
		if v := cell(r, cols.credits); v != "" {
			row.Credits, _ = strconv.ParseFloat(v, 64)
		}
		lowerURL := strings.ToLower(row.AudioURL)
		switch {
		case row.Text != "":
			row.Kind, row.AudioURL = types.SourceText, ""
		case strings.HasPrefix(lowerURL, "http://") || strings.HasPrefix(lowerURL, "https://"):
			row.Kind = types.SourceAudio
		default:
			skipped++
			continue
		}
		out = append(out, row)
	}
	log.WithField("rows", len(out)).WithField("skipped", skipped).Info("manifest loaded")
	return out, nil
}
