package core

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func pattern(f Field, required, fuzzy bool, patterns ...string) ColumnPattern {
	return ColumnPattern{Field: f, Patterns: patterns, Required: required, Fuzzy: fuzzy}
}

// testRules are a small rule set in evaluation order.
func testRules() []LayoutRule {
	rules := []LayoutRule{
		{
			Name:             "ru-split",
			Priority:         10,
			Sign:             SignDebitCredit,
			DateFormat:       "DD.MM.YYYY",
			DecimalSeparator: ",",
			Columns: []ColumnPattern{
				pattern(FieldTransactionDate, true, false, "дата", "дата операции"),
				pattern(FieldDescription, true, false, "описание"),
				pattern(FieldDebit, true, false, "дебет"),
				pattern(FieldCredit, true, false, "кредит"),
			},
		},
		{
			Name:     "signed",
			Priority: 20,
			Sign:     SignSingle,
			Columns: []ColumnPattern{
				pattern(FieldTransactionDate, true, false, "date", "transaction date"),
				pattern(FieldDescription, true, true, "description", "details"),
				pattern(FieldAmount, true, false, "amount", "amount*"),
				pattern(FieldBalanceAfter, false, false, "balance"),
			},
		},
		{
			Name:     "signed-late",
			Priority: 30,
			Sign:     SignSingle,
			Columns: []ColumnPattern{
				pattern(FieldTransactionDate, true, false, "date"),
				pattern(FieldDescription, true, false, "description"),
				pattern(FieldAmount, true, false, "amount"),
			},
		},
	}
	SortRules(rules)
	return rules
}

func grid(rows ...[]string) *RawGrid {
	return &RawGrid{Rows: rows}
}

// ============================================================================
// Rule matching Tests
// ============================================================================

func TestMapSchema_RuleAfterPreamble(t *testing.T) {
	g := grid(
		[]string{"Выписка по счету 40817810000000000001"},
		[]string{"Период", "01.01.2024 - 31.01.2024"},
		[]string{"Дата", "Описание", "Дебет", "Кредит"},
		[]string{"15.01.2024", "Кафе", "150,00", ""},
		[]string{"16.01.2024", "Зарплата", "", "50 000,00"},
	)

	m, err := MapSchema(g, testRules(), MapOptions{})
	if err != nil {
		t.Fatalf("MapSchema() error: %v", err)
	}

	want := map[Field]int{FieldTransactionDate: 0, FieldDescription: 1, FieldDebit: 2, FieldCredit: 3}
	if m.Rule != "ru-split" || m.HeaderRow != 2 || m.DataStart != 3 {
		t.Errorf("mapping = %s", spew.Sdump(m))
	}
	if !reflect.DeepEqual(m.Columns, want) {
		t.Errorf("Columns = %v, want %v", m.Columns, want)
	}
	if m.Sign != SignDebitCredit || m.DecimalSep != ',' || m.DateHint.Order != OrderDayFirst {
		t.Errorf("hints = %s", spew.Sdump(m))
	}
}

func TestMapSchema_PriorityAndFuzzy(t *testing.T) {
	g := grid(
		[]string{"Date", "Descripton", "Amount", "Balance"},
		[]string{"01/15/2024", "Coffee", "-3.50", "996.50"},
		[]string{"01/16/2024", "Salary", "1,000.00", "1,996.50"},
	)

	m, err := MapSchema(g, testRules(), MapOptions{})
	if err != nil {
		t.Fatalf("MapSchema() error: %v", err)
	}

	// signed-late would need an exact "description" header, and signed has
	// the lower priority anyway.
	if m.Rule != "signed" {
		t.Fatalf("Rule = %q, want signed", m.Rule)
	}
	want := map[Field]int{FieldTransactionDate: 0, FieldDescription: 1, FieldAmount: 2, FieldBalanceAfter: 3}
	if !reflect.DeepEqual(m.Columns, want) {
		t.Errorf("Columns = %v, want %v", m.Columns, want)
	}
	if m.DateHint.Order != OrderMonthFirst {
		t.Errorf("DateHint.Order = %v, want month-first", m.DateHint.Order)
	}
	if m.DecimalSep != '.' {
		t.Errorf("DecimalSep = %q, want '.'", m.DecimalSep)
	}
}

func TestMapSchema_EqualPriorityUsesName(t *testing.T) {
	rules := testRules()
	for i := range rules {
		rules[i].Priority = 1
	}
	SortRules(rules)

	g := grid(
		[]string{"Date", "Description", "Amount"},
		[]string{"2024-01-15", "Coffee", "-3.50"},
	)
	m, err := MapSchema(g, rules, MapOptions{})
	if err != nil {
		t.Fatalf("MapSchema() error: %v", err)
	}
	if m.Rule != "signed" {
		t.Errorf("Rule = %q, want signed (alphabetically before signed-late)", m.Rule)
	}
}

func TestMapSchema_PrefixPattern(t *testing.T) {
	g := grid(
		[]string{"Date", "Details", "Amount (EUR)"},
		[]string{"2024-01-15", "Coffee", "-3,50"},
		[]string{"2024-01-16", "Tea", "-2,10"},
	)
	m, err := MapSchema(g, testRules(), MapOptions{})
	if err != nil {
		t.Fatalf("MapSchema() error: %v", err)
	}
	if col, _ := m.Column(FieldAmount); col != 2 {
		t.Errorf("amount column = %d, want 2", col)
	}
	if m.DecimalSep != ',' {
		t.Errorf("DecimalSep = %q, want ','", m.DecimalSep)
	}
}

func TestMapSchema_HeaderWithoutData(t *testing.T) {
	g := grid(
		[]string{"Date", "Description", "Amount"},
		[]string{"", "", ""},
	)
	_, err := MapSchema(g, testRules(), MapOptions{})
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("error = %v, want ErrEmptyInput", err)
	}
}

func TestMapSchema_InvalidRuleSeparator(t *testing.T) {
	rules := []LayoutRule{{
		Name:             "bad",
		Sign:             SignSingle,
		DecimalSeparator: ";",
		Columns: []ColumnPattern{
			pattern(FieldTransactionDate, true, false, "date"),
			pattern(FieldDescription, true, false, "description"),
			pattern(FieldAmount, true, false, "amount"),
		},
	}}
	g := grid(
		[]string{"Date", "Description", "Amount"},
		[]string{"2024-01-15", "Coffee", "-3.50"},
	)
	_, err := MapSchema(g, rules, MapOptions{})
	if !errors.Is(err, ErrUnmappableSchema) {
		t.Errorf("error = %v, want ErrUnmappableSchema", err)
	}
}

// ============================================================================
// Positional fallback Tests
// ============================================================================

func TestMapSchema_PositionalNoHeader(t *testing.T) {
	g := grid(
		[]string{"15.01.2024", "Coffee shop downtown", "-3.50", "100.00"},
		[]string{"16.01.2024", "Salary January", "1000.00", "101.00"},
		[]string{"17.01.2024", "Groceries", "-45.10", "102.00"},
	)

	m, err := MapSchema(g, testRules(), MapOptions{})
	if err != nil {
		t.Fatalf("MapSchema() error: %v", err)
	}
	if !m.Positional || m.Rule != PositionalRuleName {
		t.Errorf("expected positional mapping, got %s", spew.Sdump(m))
	}
	if m.HeaderRow != -1 || m.DataStart != 0 {
		t.Errorf("HeaderRow/DataStart = %d/%d, want -1/0", m.HeaderRow, m.DataStart)
	}
	want := map[Field]int{FieldTransactionDate: 0, FieldDescription: 1, FieldAmount: 2}
	if !reflect.DeepEqual(m.Columns, want) {
		t.Errorf("Columns = %v, want %v", m.Columns, want)
	}
	if m.DateHint.Order != OrderDayFirst || m.DecimalSep != '.' {
		t.Errorf("hints = %s", spew.Sdump(m.DateHint, m.DecimalSep))
	}
}

func TestMapSchema_PositionalUnknownHeader(t *testing.T) {
	g := grid(
		[]string{"Booked", "Text", "Value"},
		[]string{"2024-01-15", "Coffee", "-3.50"},
		[]string{"2024-01-16", "Salary", "1000.00"},
	)

	m, err := MapSchema(g, testRules(), MapOptions{})
	if err != nil {
		t.Fatalf("MapSchema() error: %v", err)
	}
	if m.HeaderRow != 0 || m.DataStart != 1 || !m.Positional {
		t.Errorf("mapping = %s", spew.Sdump(m))
	}
	if col, _ := m.Column(FieldAmount); col != 2 {
		t.Errorf("amount column = %d, want 2", col)
	}
}

func TestMapSchema_PositionalKeepsTextHeavyRows(t *testing.T) {
	g := grid(
		[]string{"Col A", "Col B", "", "Col D", "Col E"},
		[]string{"2024-01-05", "Coffee at Blue Bottle", "-3.50", "REF-A", "card"},
		[]string{"2024-01-06", "Salary for January", "1000.00", "REF-B", "transfer"},
		[]string{"2024-01-07", "Rent payment March", "-700.00", "REF-C", "transfer"},
	)

	m, err := MapSchema(g, testRules(), MapOptions{})
	if err != nil {
		t.Fatalf("MapSchema() error: %v", err)
	}
	if m.HeaderRow != 0 || m.DataStart != 1 {
		t.Fatalf("header row chosen past the first candidate: %s", spew.Sdump(m))
	}
	want := map[Field]int{FieldTransactionDate: 0, FieldDescription: 1, FieldAmount: 2}
	if !reflect.DeepEqual(m.Columns, want) {
		t.Errorf("Columns = %v, want %v", m.Columns, want)
	}

	a := AssembleRecords(g, m, AssembleOptions{BaseCurrency: "USD"})
	if len(a.Records) != 3 || a.TotalRows != 3 || len(a.RowErrors) != 0 {
		t.Errorf("records=%d total=%d rowErrors=%v", len(a.Records), a.TotalRows, a.RowErrors)
	}
}

func TestMapSchema_Unmappable(t *testing.T) {
	g := grid(
		[]string{"Name", "Email"},
		[]string{"Alice", "alice@example.com"},
		[]string{"Bob", "bob@example.com"},
	)

	_, err := MapSchema(g, testRules(), MapOptions{})
	if !errors.Is(err, ErrUnmappableSchema) {
		t.Fatalf("error = %v, want ErrUnmappableSchema", err)
	}
	if !strings.Contains(err.Error(), "transaction_date") {
		t.Errorf("error should name the missing field: %v", err)
	}
}

func TestFindHeaderRow(t *testing.T) {
	g := grid(
		[]string{"Report"},
		[]string{"2024-01-15", "100"},
		[]string{"Date", "Amount"},
		[]string{"2024-01-15", "100"},
	)
	if got := FindHeaderRow(g, 10); got != 2 {
		t.Errorf("FindHeaderRow() = %d, want 2", got)
	}
	if got := FindHeaderRow(g, 2); got != -1 {
		t.Errorf("FindHeaderRow() within 2 rows = %d, want -1", got)
	}
}

// ============================================================================
// Inference Tests
// ============================================================================

func TestInferDateOrder(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   DateOrder
	}{
		{"day above twelve", []string{"01.02.2024", "15.01.2024"}, OrderDayFirst},
		{"month first", []string{"01/15/2024"}, OrderMonthFirst},
		{"never disambiguated", []string{"01.02.2024", "03.04.2024"}, OrderUnknown},
		{"contradicting", []string{"15.01.2024", "01/15/2024"}, OrderUnknown},
		{"iso only", []string{"2024-01-15"}, OrderUnknown},
		{"with time", []string{"15.01.2024 10:30"}, OrderDayFirst},
		{"empty", nil, OrderUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferDateOrder(tt.values); got != tt.want {
				t.Errorf("InferDateOrder(%q) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

func TestInferDecimalSeparator(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   rune
	}{
		{"comma decimal", []string{"1 234,56"}, ','},
		{"dot decimal with grouping", []string{"1,234.56"}, '.'},
		{"three digits after comma undecided", []string{"1,234"}, 0},
		{"repeated dots are grouping", []string{"1.234.567"}, ','},
		{"repeated commas are grouping", []string{"1,234,567"}, '.'},
		{"tie", []string{"12,5", "3.25"}, 0},
		{"integers", []string{"100", "-5"}, 0},
		{"majority", []string{"-3.50", "1,000.00", "7,5"}, '.'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferDecimalSeparator(tt.values); got != tt.want {
				t.Errorf("InferDecimalSeparator(%q) = %q, want %q", tt.values, got, tt.want)
			}
		})
	}
}

func TestMapping_String(t *testing.T) {
	m := &Mapping{
		Rule:       "ru-split",
		HeaderRow:  2,
		Sign:       SignDebitCredit,
		DateHint:   DateHint{Order: OrderDayFirst},
		DecimalSep: ',',
		Columns:    map[Field]int{FieldCredit: 3, FieldTransactionDate: 0, FieldDebit: 2, FieldDescription: 1},
	}
	want := "rule=ru-split header=2 sign=debit_credit dates=day-first decimal=, " +
		"[0=transaction_date 1=description 2=debit 3=credit]"
	if got := m.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestMapSchema_SampleOverridesRuleSeparator(t *testing.T) {
	g := grid(
		[]string{"Дата", "Описание", "Дебет", "Кредит"},
		[]string{"15.01.2024", "Кафе", "150.00", ""},
		[]string{"16.01.2024", "Зарплата", "", "1,500.50"},
	)
	m, err := MapSchema(g, testRules(), MapOptions{})
	if err != nil {
		t.Fatalf("MapSchema() error: %v", err)
	}
	if m.Rule != "ru-split" || m.DecimalSep != '.' {
		t.Errorf("mapping = %s", spew.Sdump(m))
	}

	// An undecided sample keeps the rule's separator.
	g = grid(
		[]string{"Дата", "Описание", "Дебет", "Кредит"},
		[]string{"15.01.2024", "Кафе", "1.500", ""},
	)
	m, err = MapSchema(g, testRules(), MapOptions{})
	if err != nil {
		t.Fatalf("MapSchema() error: %v", err)
	}
	if m.DecimalSep != ',' {
		t.Errorf("DecimalSep = %q, want ','", m.DecimalSep)
	}
}
