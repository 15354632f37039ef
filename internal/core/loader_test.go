package core

import (
	"errors"
	"reflect"
	"testing"

	"golang.org/x/text/encoding/charmap"
)

func textFile(s string) *RawFile {
	return &RawFile{Name: "s.csv", Data: []byte(s), Format: FormatDelimited, Encoding: EncodingUTF8}
}

// ============================================================================
// Delimited text Tests
// ============================================================================

func TestLoadGrid_Delimited(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantDelim rune
		wantWidth int
		wantRows  [][]string
	}{
		{
			name:      "comma",
			input:     "Date,Description,Amount\n2024-01-15,Coffee,-3.50\n",
			wantDelim: ',',
			wantWidth: 3,
			wantRows: [][]string{
				{"Date", "Description", "Amount"},
				{"2024-01-15", "Coffee", "-3.50"},
			},
		},
		{
			name:      "semicolon with decimal commas",
			input:     "Дата;Описание;Сумма\n15.01.2024;Кафе;-1,50\n16.01.2024;Зарплата;1000,00\n",
			wantDelim: ';',
			wantWidth: 3,
			wantRows: [][]string{
				{"Дата", "Описание", "Сумма"},
				{"15.01.2024", "Кафе", "-1,50"},
				{"16.01.2024", "Зарплата", "1000,00"},
			},
		},
		{
			name:      "tab",
			input:     "Date\tDescription\tAmount\n2024-01-15\tCoffee, large\t-3.50\n2024-01-16\tTea\t-2.00\n",
			wantDelim: '\t',
			wantWidth: 3,
			wantRows: [][]string{
				{"Date", "Description", "Amount"},
				{"2024-01-15", "Coffee, large", "-3.50"},
				{"2024-01-16", "Tea", "-2.00"},
			},
		},
		{
			name:      "quoted delimiter",
			input:     "Date,Description,Amount\n2024-01-15,\"Shop, Inc\",\"1,234.00\"\n",
			wantDelim: ',',
			wantWidth: 3,
			wantRows: [][]string{
				{"Date", "Description", "Amount"},
				{"2024-01-15", "Shop, Inc", "1,234.00"},
			},
		},
		{
			name:      "crlf and trailing blank lines",
			input:     "a,b\r\n1,2\r\n\r\n\r\n",
			wantDelim: ',',
			wantWidth: 2,
			wantRows:  [][]string{{"a", "b"}, {"1", "2"}},
		},
		{
			name:      "header comma data semicolon",
			input:     "Date,Description,Amount\n15.01.2024;Coffee;-3,50\n16.01.2024;Salary;1000,00\n",
			wantDelim: ';',
			wantWidth: 3,
			wantRows: [][]string{
				{"Date", "Description", "Amount"},
				{"15.01.2024", "Coffee", "-3,50"},
				{"16.01.2024", "Salary", "1000,00"},
			},
		},
		{
			name:      "header comma single semicolon row",
			input:     "Дата,Описание,Сумма\n05.01.2024;Оплата;-100,00\n",
			wantDelim: ';',
			wantWidth: 3,
			wantRows: [][]string{
				{"Дата", "Описание", "Сумма"},
				{"05.01.2024", "Оплата", "-100,00"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := LoadGrid(textFile(tt.input), LoadOptions{})
			if err != nil {
				t.Fatalf("LoadGrid() error: %v", err)
			}
			if g.Delimiter != tt.wantDelim {
				t.Errorf("Delimiter = %q, want %q", g.Delimiter, tt.wantDelim)
			}
			if g.Width != tt.wantWidth {
				t.Errorf("Width = %d, want %d", g.Width, tt.wantWidth)
			}
			if !reflect.DeepEqual(g.Rows, tt.wantRows) {
				t.Errorf("Rows = %q, want %q", g.Rows, tt.wantRows)
			}
		})
	}
}

func TestLoadGrid_DelimitedFailures(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"single line", "Date,Description,Amount\n", ErrEmptyInput},
		{"prose", "hello world\nthis is not a table\n", ErrStructuralAmbiguity},
		{"blank lines only", "\n\n,,\n", ErrEmptyInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadGrid(textFile(tt.input), LoadOptions{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadGrid_LegacyEncoding(t *testing.T) {
	f := &RawFile{
		Name:     "s.csv",
		Data:     encodeWith(t, charmap.Windows1251, "Дата;Сумма\n15.01.2024;-1,50\n"),
		Format:   FormatDelimited,
		Encoding: EncodingWindows1251,
	}
	g, err := LoadGrid(f, LoadOptions{})
	if err != nil {
		t.Fatalf("LoadGrid() error: %v", err)
	}
	if g.Cell(0, 0) != "Дата" || g.Cell(1, 1) != "-1,50" {
		t.Errorf("Rows = %q", g.Rows)
	}
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantDelim rune
		wantWidth int
		wantErr   bool
	}{
		{"comma", "a,b,c\n1,2,3\n4,5,6\n", ',', 3, false},
		{"semicolon beats comma decimals", "a;b\n1,5;2\n3,5;4\n", ';', 2, false},
		{"tab", "a\tb\n1\t2\n", '\t', 2, false},
		{"preamble lines", "Statement\nAccount 123\na;b;c\n1;2;3\n4;5;6\n", ';', 3, false},
		{"header in other delimiter with one row", "Дата,Описание,Сумма\n05.01.2024;Оплата;-100,00\n", ';', 3, false},
		{"title line alone does not count", "Statement\n1;2;3\n", 0, 0, true},
		{"no delimiter", "one\ntwo\nthree\n", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delim, width, err := SniffDelimiter(tt.text, DefaultSniffLines)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if delim != tt.wantDelim || width != tt.wantWidth {
				t.Errorf("got %q/%d, want %q/%d", delim, width, tt.wantDelim, tt.wantWidth)
			}
		})
	}
}

func TestResplitHeader(t *testing.T) {
	rows := [][]string{{""}, {"Дата,Описание,Сумма"}, {"15.01.2024", "Кафе", "-1,50"}}
	resplitHeader(rows, ';', 3)
	want := []string{"Дата", "Описание", "Сумма"}
	if !reflect.DeepEqual(rows[1], want) {
		t.Errorf("header = %q, want %q", rows[1], want)
	}

	// A single-cell title that does not split to the grid width stays.
	rows = [][]string{{"Statement for January, 2024"}, {"a", "b", "c"}}
	resplitHeader(rows, ';', 3)
	if len(rows[0]) != 1 {
		t.Errorf("title was split: %q", rows[0])
	}
}

// ============================================================================
// Spreadsheet Tests
// ============================================================================

func TestLoadGrid_XLSX(t *testing.T) {
	data := xlsxBytes(t, map[string][][]any{
		"Empty": {},
		"Operations": {
			{"Date", "Description", "Amount"},
			{"2024-01-15", "Coffee", -3.5},
			{45296, "Serial date", 100},
		},
	}, "Empty", "Operations")

	f := &RawFile{Name: "s.xlsx", Data: data, Format: FormatSpreadsheet, Spreadsheet: SpreadsheetXLSX}

	g, err := LoadGrid(f, LoadOptions{})
	if err != nil {
		t.Fatalf("LoadGrid() error: %v", err)
	}
	if g.Sheet != "Operations" {
		t.Errorf("Sheet = %q, want first non-empty sheet", g.Sheet)
	}
	if g.Width != 3 {
		t.Errorf("Width = %d", g.Width)
	}
	if g.Cell(1, 1) != "Coffee" || g.Cell(2, 0) != "45296" {
		t.Errorf("Rows = %q", g.Rows)
	}
	if g.RawCell(2, 0) != "45296" {
		t.Errorf("RawCell = %q", g.RawCell(2, 0))
	}

	_, err = LoadGrid(f, LoadOptions{SheetName: "Missing"})
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("missing sheet error = %v", err)
	}

	g, err = LoadGrid(f, LoadOptions{SheetName: "Operations"})
	if err != nil || g.Sheet != "Operations" {
		t.Errorf("named sheet: %v, %v", g, err)
	}
}

func TestRawGrid_Cell(t *testing.T) {
	g := &RawGrid{Rows: [][]string{{" a ", "b"}, {"c"}}}
	tests := []struct {
		row, col int
		want     string
	}{
		{0, 0, "a"},
		{0, 1, "b"},
		{1, 1, ""},
		{5, 0, ""},
		{-1, 0, ""},
	}
	for _, tt := range tests {
		if got := g.Cell(tt.row, tt.col); got != tt.want {
			t.Errorf("Cell(%d,%d) = %q, want %q", tt.row, tt.col, got, tt.want)
		}
	}
	if g.RawCell(0, 0) != "" {
		t.Error("RawCell on a delimited grid should be empty")
	}
}
