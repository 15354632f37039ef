package core

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

const (
	// DefaultSniffLines is how many records feed delimiter detection.
	DefaultSniffLines = 50

	// MinConsistentRows is the least number of records that must share the
	// modal column count for a delimiter to be accepted.
	MinConsistentRows = 2
)

// delimiterCandidates are tried in this order; earlier wins ties.
var delimiterCandidates = []rune{',', ';', '\t'}

// LoadOptions configures LoadGrid.
type LoadOptions struct {
	SheetName  string
	SniffLines int
}

// LoadGrid turns a detected file into a RawGrid.
func LoadGrid(f *RawFile, opts LoadOptions) (*RawGrid, error) {
	if opts.SniffLines <= 0 {
		opts.SniffLines = DefaultSniffLines
	}

	var (
		grid *RawGrid
		err  error
	)
	switch {
	case f.Format == FormatSpreadsheet && f.Spreadsheet == SpreadsheetXLSX:
		grid, err = loadXLSX(f.Data, opts.SheetName)
	case f.Format == FormatSpreadsheet && f.Spreadsheet == SpreadsheetXLS:
		grid, err = loadXLS(f.Data, opts.SheetName)
	case f.Format == FormatDelimited:
		grid, err = loadDelimited(f.Data, f.Encoding, opts.SniffLines)
	default:
		return nil, stageErr(StageLoad, KindUnsupportedContainer, "format %q", f.Format)
	}
	if err != nil {
		return nil, err
	}

	grid.Rows, grid.Raw = trimTrailingBlank(grid.Rows, grid.Raw)
	if countNonEmpty(grid.Rows) < 2 {
		return nil, stageErr(StageLoad, KindEmptyInput, "%d non-empty rows", countNonEmpty(grid.Rows))
	}
	if grid.Width == 0 {
		grid.Width = modalWidth(grid.Rows)
	}
	return grid, nil
}

// loadXLSX reads a workbook with excelize. Rows hold the displayed text and
// Raw the unformatted values, so date serials survive for the normalizer.
func loadXLSX(data []byte, sheetName string) (*RawGrid, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, wrapStageErr(StageLoad, KindUnsupportedContainer, err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if sheetName != "" {
		if idx, _ := wb.GetSheetIndex(sheetName); idx < 0 {
			return nil, stageErr(StageLoad, KindEmptyInput, "sheet %q not found", sheetName)
		}
		sheets = []string{sheetName}
	}

	for _, name := range sheets {
		rows, err := wb.GetRows(name)
		if err != nil {
			return nil, wrapStageErr(StageLoad, KindUnsupportedContainer, fmt.Errorf("read sheet %q: %w", name, err))
		}
		if countNonEmpty(rows) == 0 {
			continue
		}
		raw, err := wb.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			raw = nil
		}
		return &RawGrid{Rows: rows, Raw: raw, Sheet: name}, nil
	}

	return nil, stageErr(StageLoad, KindEmptyInput, "no sheet with data")
}

// loadXLS reads a legacy BIFF workbook.
func loadXLS(data []byte, sheetName string) (*RawGrid, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, wrapStageErr(StageLoad, KindUnsupportedContainer, err)
	}

	found := false
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		if sheetName != "" && sheet.Name != sheetName {
			continue
		}
		found = true

		var rows [][]string
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		if countNonEmpty(rows) > 0 {
			return &RawGrid{Rows: rows, Sheet: sheet.Name}, nil
		}
	}

	if sheetName != "" && !found {
		return nil, stageErr(StageLoad, KindEmptyInput, "sheet %q not found", sheetName)
	}
	return nil, stageErr(StageLoad, KindEmptyInput, "no sheet with data")
}

func loadDelimited(data []byte, enc Encoding, sniffLines int) (*RawGrid, error) {
	text, err := DecodeText(data, enc)
	if err != nil {
		return nil, wrapStageErr(StageLoad, KindUnsupportedContainer, err)
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	sample, err := readRecords(text, ',', sniffLines)
	if err == nil && countNonEmpty(sample) < 2 {
		return nil, stageErr(StageLoad, KindEmptyInput, "%d non-empty lines", countNonEmpty(sample))
	}

	delim, width, err := SniffDelimiter(text, sniffLines)
	if err != nil {
		return nil, err
	}

	rows, err := readRecords(text, delim, 0)
	if err != nil {
		return nil, wrapStageErr(StageLoad, KindStructuralAmbiguity, err)
	}
	resplitHeader(rows, delim, width)
	return &RawGrid{Rows: rows, Delimiter: delim, Width: width}, nil
}

// resplitHeader handles exports whose header line uses a different delimiter
// than the data lines ("Дата,Описание,Сумма" above semicolon rows). When the
// first non-blank record is a single cell that splits into exactly width
// cells on another candidate, it is replaced by the split.
func resplitHeader(rows [][]string, delim rune, width int) {
	i, first := firstNonBlank(rows)
	if first == nil || len(first) != 1 {
		return
	}
	if parts, ok := splitsElsewhere(first[0], delim, width); ok {
		rows[i] = parts
	}
}

// splitsElsewhere splits a single-cell line on the first other candidate
// that yields exactly width cells.
func splitsElsewhere(line string, delim rune, width int) ([]string, bool) {
	for _, cand := range delimiterCandidates {
		if cand == delim {
			continue
		}
		parts, err := readRecords(line, cand, 1)
		if err == nil && len(parts) == 1 && len(parts[0]) == width {
			return parts[0], true
		}
	}
	return nil, false
}

func firstNonBlank(rows [][]string) (int, []string) {
	for i, row := range rows {
		if !isEmptyRow(row) {
			return i, row
		}
	}
	return -1, nil
}

// SniffDelimiter picks the candidate delimiter whose modal column count is
// shared by the most records among the first n. The modal count must be at
// least 2 and be shared by MinConsistentRows records. A leading single-cell
// line that resplitHeader would split to the modal count supports the
// candidate too, so a header plus one data row in different delimiters loads.
func SniffDelimiter(text string, n int) (rune, int, error) {
	var (
		best        rune
		bestSupport int
		bestWidth   int
	)

	for _, cand := range delimiterCandidates {
		records, err := readRecords(text, cand, n)
		if err != nil && len(records) == 0 {
			continue
		}
		width, support := modalCount(records)
		if width < 2 {
			continue
		}
		if _, first := firstNonBlank(records); len(first) == 1 {
			if _, ok := splitsElsewhere(first[0], cand, width); ok {
				support++
			}
		}
		if support < MinConsistentRows {
			continue
		}
		if support > bestSupport || (support == bestSupport && width > bestWidth) {
			best, bestSupport, bestWidth = cand, support, width
		}
	}

	if bestSupport == 0 {
		return 0, 0, stageErr(StageLoad, KindStructuralAmbiguity,
			"no delimiter among comma, semicolon, tab gives %d rows with a consistent column count", MinConsistentRows)
	}
	return best, bestWidth, nil
}

// readRecords parses up to limit non-blank records (0 means all). Blank
// records are kept so row positions stay meaningful. On a parse error the
// records read so far are returned with the error.
func readRecords(text string, delim rune, limit int) ([][]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	var records [][]string
	nonBlank := 0
	for limit <= 0 || nonBlank < limit {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return records, fmt.Errorf("parse line %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
		if !isEmptyRow(rec) {
			nonBlank++
		}
	}
	return records, nil
}

// modalCount returns the most common column count among non-blank records
// and how many records have it. Ties prefer the wider count.
func modalCount(records [][]string) (width, support int) {
	counts := make(map[int]int)
	for _, rec := range records {
		if isEmptyRow(rec) {
			continue
		}
		counts[len(rec)]++
	}
	for w, c := range counts {
		if c > support || (c == support && w > width) {
			width, support = w, c
		}
	}
	return width, support
}

func modalWidth(rows [][]string) int {
	w, _ := modalCount(rows)
	return w
}

// isEmptyRow checks if a row contains only empty or whitespace values.
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func countNonEmpty(rows [][]string) int {
	n := 0
	for _, row := range rows {
		if !isEmptyRow(row) {
			n++
		}
	}
	return n
}

func trimTrailingBlank(rows, raw [][]string) ([][]string, [][]string) {
	end := len(rows)
	for end > 0 && isEmptyRow(rows[end-1]) {
		end--
	}
	rows = rows[:end]
	if raw != nil && len(raw) > end {
		raw = raw[:end]
	}
	return rows, raw
}
