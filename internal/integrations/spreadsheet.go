package integrations

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SpreadsheetIntegration appends a row to an .xlsx workbook, creating the
// workbook and sheet on first use.
//
// Config: path (relative to Dir), sheet (default Sheet1), values (list of cells).
type SpreadsheetIntegration struct {
	Dir string
}

func (s *SpreadsheetIntegration) Type() string             { return TypeSpreadsheet }
func (s *SpreadsheetIntegration) RequiredFields() []string { return []string{"path", "values"} }

func (s *SpreadsheetIntegration) Execute(ctx context.Context, config, _ map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolvePath(stringField(config, "path"))
	if err != nil {
		return nil, err
	}
	sheet := stringField(config, "sheet")
	if sheet == "" {
		sheet = "Sheet1"
	}
	values := sliceField(config, "values")
	if len(values) == 0 {
		return nil, fmt.Errorf("values must contain at least one cell")
	}

	f, err := openWorkbook(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, fmt.Errorf("sheet index: %w", err)
	}
	if idx == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, fmt.Errorf("create sheet %q: %w", sheet, err)
		}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	row := len(rows) + 1
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return nil, fmt.Errorf("write row: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("save workbook: %w", err)
	}
	return map[string]any{"path": path, "sheet": sheet, "row": row}, nil
}

// resolvePath keeps workbook paths inside Dir.
func (s *SpreadsheetIntegration) resolvePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is required")
	}
	if !strings.HasSuffix(strings.ToLower(p), ".xlsx") {
		return "", fmt.Errorf("path %q must end in .xlsx", p)
	}
	if s.Dir == "" {
		return filepath.Clean(p), nil
	}
	cleaned := filepath.Clean("/" + p)
	return filepath.Join(s.Dir, cleaned), nil
}

func openWorkbook(path string) (*excelize.File, error) {
	f, err := excelize.OpenFile(path)
	if err == nil {
		return f, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return excelize.NewFile(), nil
	}
	return nil, fmt.Errorf("open workbook: %w", err)
}
