package eval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

const (
	JSONReportName  = "eval_results.json"
	XLSXReportName  = "eval_results.xlsx"
	reportSheetName = "Results"
)

// reportColumns are the flattened column headers of the spreadsheet.
var reportColumns = []string{
	"id",
	"input",
	"status",
	"error",
	"output.customer.full_name",
	"output.customer.phone",
	"output.customer.address",
	"output.customer.city",
	"output.customer.locality",
	"output.interaction.summary",
	"output.interaction.created_at",
}

// WriteJSON writes results as indented JSON to dir/eval_results.json and
// returns the path.
func WriteJSON(dir string, results []CaseResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	if results == nil {
		results = []CaseResult{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling results: %w", err)
	}

	path := filepath.Join(dir, JSONReportName)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// WriteXLSX writes one row per result with nested output fields flattened
// into dotted columns, and returns the path.
func WriteXLSX(dir string, results []CaseResult) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheetName); err != nil {
		return "", fmt.Errorf("naming sheet: %w", err)
	}
	if err := f.SetSheetRow(reportSheetName, "A1", &reportColumns); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		row := flatten(r)
		if err := f.SetSheetRow(reportSheetName, cell, &row); err != nil {
			return "", fmt.Errorf("writing row %d: %w", r.ID, err)
		}
	}

	path := filepath.Join(dir, XLSXReportName)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("saving %s: %w", path, err)
	}
	return path, nil
}

// reportFields maps the output columns onto the extraction result.
var reportFields = [][2]string{
	{"customer", "full_name"},
	{"customer", "phone"},
	{"customer", "address"},
	{"customer", "city"},
	{"customer", "locality"},
	{"interaction", "summary"},
	{"interaction", "created_at"},
}

func flatten(r CaseResult) []interface{} {
	row := []interface{}{r.ID, r.Input, r.Status, r.Error}
	for _, f := range reportFields {
		v, _ := r.Output.Field(f[0], f[1])
		row = append(row, v)
	}
	return row
}
