// Package export renders review queues as XLSX workbooks for the
// operations team.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/freightflow/extractd/internal/repository"
)

const (
	jobsSheet   = "Jobs"
	fieldsSheet = "Fields"
)

// WriteWorkbook renders the given reports into an XLSX workbook: one
// summary row per job and one detail row per scored field.
func WriteWorkbook(reports []repository.StoredReport, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", jobsSheet)
	if _, err := f.NewSheet(fieldsSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	jobHeaders := []string{"Job ID", "Created", "Decision", "Overall", "Flagged Critical", "Low Redundancy", "Reasons"}
	if err := writeRow(f, jobsSheet, 1, toCells(jobHeaders)); err != nil {
		return err
	}
	fieldHeaders := []string{"Job ID", "Field", "Value", "Source", "Agreement", "Confidence", "Rule Valid", "Critical", "Flagged", "Reasons"}
	if err := writeRow(f, fieldsSheet, 1, toCells(fieldHeaders)); err != nil {
		return err
	}

	fieldRow := 2
	for i, rep := range reports {
		row := []any{
			rep.JobID.String(),
			rep.CreatedAt.Format("2006-01-02 15:04:05"),
			string(rep.Verdict.Decision),
			rep.Report.Overall,
			rep.Report.FlaggedCritical,
			rep.Report.LowRedundancy,
			strings.Join(rep.Verdict.Reasons, "; "),
		}
		if err := writeRow(f, jobsSheet, i+2, row); err != nil {
			return err
		}

		for _, fs := range rep.Report.Fields {
			detail := []any{
				rep.JobID.String(),
				fs.Name,
				fmt.Sprint(fs.Value),
				fs.Source,
				fs.Agreement,
				fs.Confidence,
				fs.RuleValid,
				fs.Critical,
				fs.Flagged,
				strings.Join(fs.Reasons, "; "),
			}
			if err := writeRow(f, fieldsSheet, fieldRow, detail); err != nil {
				return err
			}
			fieldRow++
		}
	}

	if err := f.SetColWidth(jobsSheet, "A", "A", 38); err != nil {
		return err
	}
	if err := f.SetColWidth(fieldsSheet, "A", "A", 38); err != nil {
		return err
	}

	return f.Write(w)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}
	return nil
}

func toCells(headers []string) []any {
	out := make([]any, len(headers))
	for i, h := range headers {
		out[i] = h
	}
	return out
}
