package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"transcript-insights-go/internal/logger"
	"transcript-insights-go/internal/types"
)

// Sheet names in the exported workbook.
const (
	SheetSections = "Sections"
	SheetEntities = "Entities"
	SheetQuiz     = "Quiz Plan"
	SheetCosts    = "Costs"
)

// Writer exports run documents as workbooks under Dir.
type Writer struct {
	Dir string
}

// Write saves doc to <Dir>/<job id>.xlsx and returns the path.
func (w Writer) Write(doc *types.Document) (string, error) {
	log := logger.Component("assets").WithJob(doc.JobID)
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return "", err
	}

	if err := f.SetSheetName("Sheet1", SheetSections); err != nil {
		return "", err
	}
	rows := [][]any{{"#", "Start", "End", "Title", "Summary", "Quotes", "Claims", "Concepts"}}
	for i, r := range doc.Sections {
		rows = append(rows, []any{i, r.StartTime, r.EndTime, r.Title, r.Summary,
			strings.Join(r.Quotes, "\n"), strings.Join(r.Claims, "\n"), r.ConceptCount()})
	}
	if err := writeSheet(f, SheetSections, rows, header); err != nil {
		return "", err
	}

	rows = [][]any{{"Section", "Entity", "Explanation"}}
	for i, r := range doc.Sections {
		for _, e := range r.Entities {
			rows = append(rows, []any{i, e.Name, e.Explanation})
		}
	}
	if err := writeSheet(f, SheetEntities, rows, header); err != nil {
		return "", err
	}

	rows = [][]any{{"Quiz", "Sections", "Concepts", "Estimated questions"}}
	for _, g := range doc.QuizGroups {
		idx := make([]string, 0, len(g.SectionIndices))
		for _, i := range g.SectionIndices {
			idx = append(idx, fmt.Sprint(i))
		}
		rows = append(rows, []any{g.QuizNumber, strings.Join(idx, ","), g.TotalConcepts, g.EstimatedQuestions})
	}
	if err := writeSheet(f, SheetQuiz, rows, header); err != nil {
		return "", err
	}

	rows = [][]any{{"Counter", "Value"}}
	keys := make([]string, 0, len(doc.Costs))
	for k := range doc.Costs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, []any{k, doc.Costs[k]})
	}
	for _, t := range doc.Timings {
		rows = append(rows, []any{"seconds:" + t.Stage, t.Seconds})
	}
	if err := writeSheet(f, SheetCosts, rows, header); err != nil {
		return "", err
	}

	path := filepath.Join(w.Dir, doc.JobID+".xlsx")
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	log.WithField("path", path).WithField("sections", len(doc.Sections)).Info("workbook written")
	return path, nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]any, headerStyle int) error {
	if idx, _ := f.GetSheetIndex(sheet); idx == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return f.SetRowStyle(sheet, 1, 1, headerStyle)
}
