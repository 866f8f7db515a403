package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractSheet extracts text from .xlsx bytes, row-major, cells joined with
// tabs and rows with newlines.
func extractSheet(content []byte) (Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return Result{}, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	var buf strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return Result{}, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			buf.WriteString(strings.Join(row, "\t"))
			buf.WriteByte('\n')
		}
	}
	return Result{Text: strings.TrimSpace(buf.String()), Kind: KindSheet}, nil
}
