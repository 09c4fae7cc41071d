package dataset

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"transcript-insights-go/internal/types"
)

func writeManifest(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "manifest.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeManifest(t, [][]any{
		{"Persona", "Audio URL", "Transcript", "Credits"},
		{"Podcast", "https://cdn/ep1.mp3", "", "12.5"},
		{"lecture", "", "00:00 Prof: welcome", ""},
		{"meeting", "not-a-url", "", ""},
	})
	rows, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0].Kind != types.SourceAudio || rows[0].Persona != "podcast" || rows[0].Credits != 12.5 || rows[0].Line != 2 {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Kind != types.SourceText || rows[1].Text == "" {
		t.Errorf("row 1 = %+v", rows[1])
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		rows [][]any
	}{
		{"header only", [][]any{{"Audio URL"}}},
		{"no usable columns", [][]any{{"Name", "Owner"}, {"a", "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeManifest(t, tt.rows)); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.xlsx")); err == nil {
		t.Error("expected error for missing file")
	}
}
