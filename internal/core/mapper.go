package core

// mapper.go decides which source column plays which canonical role.
//
// Header detection and rule evaluation are row-major: each candidate header
// row in the search window is tried against every rule in priority order,
// and the first (row, rule) pair whose required patterns all match wins.
// When no rule matches anywhere, the positional fallback sniffs column
// contents instead.

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	DefaultFuzzyThreshold   = 0.8
	DefaultHeaderSearchRows = 20
	DefaultSampleRows       = 50

	// PositionalRuleName labels mappings produced by content sniffing.
	PositionalRuleName = "positional"
)

// MapOptions configures MapSchema.
type MapOptions struct {
	FuzzyThreshold   float64
	HeaderSearchRows int
	SampleRows       int
	Pivot            int
}

func (o *MapOptions) setDefaults() {
	if o.FuzzyThreshold <= 0 {
		o.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if o.HeaderSearchRows <= 0 {
		o.HeaderSearchRows = DefaultHeaderSearchRows
	}
	if o.SampleRows <= 0 {
		o.SampleRows = DefaultSampleRows
	}
}

// Mapping is the result of schema mapping: a column assignment plus the
// format hints the normalizer needs.
type Mapping struct {
	Rule        string
	HeaderRow   int // -1 when the grid has no header
	DataStart   int
	Columns     map[Field]int
	Sign        SignConvention
	DateHint    DateHint
	DecimalSep  rune // 0 leaves separator inference to each cell
	InvertSign  bool
	ZeroIsBlank bool
	Currency    string // fixed currency from the rule, if any
	Positional  bool
}

// Column returns the source column for f.
func (m *Mapping) Column(f Field) (int, bool) {
	col, ok := m.Columns[f]
	return col, ok
}

// Assignment returns the column index to field view of the mapping.
func (m *Mapping) Assignment() map[int]Field {
	out := make(map[int]Field, len(m.Columns))
	for f, col := range m.Columns {
		out[col] = f
	}
	return out
}

// MapSchema maps g onto the canonical fields using rules, which must
// already be in evaluation order, and falls back to positional sniffing.
func MapSchema(g *RawGrid, rules []LayoutRule, opts MapOptions) (*Mapping, error) {
	opts.setDefaults()

	candidates := headerCandidates(g, opts.HeaderSearchRows, opts.Pivot)
	for _, row := range candidates {
		header := normalizedRow(g, row)
		for _, rule := range rules {
			cols, ok := matchRule(header, rule, opts.FuzzyThreshold)
			if !ok {
				continue
			}
			m, err := ruleMapping(g, rule, row, cols, opts)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}

	// The first header-like row is the header. A later text-heavy row is
	// data and must stay below it.
	header := -1
	if len(candidates) > 0 {
		header = candidates[0]
	}
	return positionalMapping(g, header, opts)
}

// FindHeaderRow returns the first row within maxRows that looks like a
// header, or -1.
func FindHeaderRow(g *RawGrid, maxRows int) int {
	if c := headerCandidates(g, maxRows, 0); len(c) > 0 {
		return c[0]
	}
	return -1
}

// headerCandidates lists rows within the search window with at least two
// non-empty cells, most of them neither numbers nor dates.
func headerCandidates(g *RawGrid, maxRows, pivot int) []int {
	var out []int
	for r := 0; r < len(g.Rows) && r < maxRows; r++ {
		nonEmpty, text := 0, 0
		for c := range g.Rows[r] {
			v := g.Cell(r, c)
			if v == "" {
				continue
			}
			nonEmpty++
			if !looksLikeValue(v, pivot) {
				text++
			}
		}
		if nonEmpty >= 2 && text*2 > nonEmpty {
			out = append(out, r)
		}
	}
	return out
}

func looksLikeValue(v string, pivot int) bool {
	if _, err := ParseAmount(v, 0); err == nil {
		return true
	}
	return dateLike(v, pivot)
}

// dateLike accepts values that parse as dates or fail only on day/month
// ambiguity.
func dateLike(v string, pivot int) bool {
	_, err := ParseDate(v, DateHint{Pivot: pivot})
	return err == nil || errors.Is(err, ErrAmbiguousDate)
}

func normalizedRow(g *RawGrid, row int) []string {
	out := make([]string, len(g.Rows[row]))
	for c := range out {
		out[c] = NormalizeHeader(g.Cell(row, c))
	}
	return out
}

// matchRule assigns header cells to the rule's column patterns. Required
// patterns are placed first, then optional ones; each cell serves at most
// one field, and equal scores go to the leftmost cell.
func matchRule(header []string, rule LayoutRule, threshold float64) (map[Field]int, bool) {
	ordered := make([]ColumnPattern, 0, len(rule.Columns))
	for _, cp := range rule.Columns {
		if cp.Required {
			ordered = append(ordered, cp)
		}
	}
	for _, cp := range rule.Columns {
		if !cp.Required {
			ordered = append(ordered, cp)
		}
	}

	used := make(map[int]bool)
	cols := make(map[Field]int)
	for _, cp := range ordered {
		best, bestScore := -1, 0.0
		for c, h := range header {
			if used[c] {
				continue
			}
			if s := bestPatternScore(h, cp, threshold); s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 {
			if cp.Required {
				return nil, false
			}
			continue
		}
		used[best] = true
		cols[cp.Field] = best
	}
	return cols, true
}

func ruleMapping(g *RawGrid, rule LayoutRule, header int, cols map[Field]int, opts MapOptions) (*Mapping, error) {
	sep, err := rule.decimalSep()
	if err != nil {
		return nil, stageErr(StageMap, KindUnmappableSchema, "%v", err)
	}

	m := &Mapping{
		Rule:        rule.Name,
		HeaderRow:   header,
		DataStart:   header + 1,
		Columns:     cols,
		Sign:        rule.Sign,
		DateHint:    ParseDateFormat(rule.DateFormat),
		DecimalSep:  sep,
		InvertSign:  rule.InvertSign,
		ZeroIsBlank: rule.ZeroIsBlank,
		Currency:    rule.Currency,
	}
	if m.Sign == "" {
		m.Sign = SignSingle
	}
	if m.Currency != "" {
		m.Currency, _ = NormalizeCurrency(m.Currency)
	}
	return finishMapping(g, m, opts)
}

// finishMapping checks that data rows exist and fills hints the rule left
// open from the sampled values.
func finishMapping(g *RawGrid, m *Mapping, opts MapOptions) (*Mapping, error) {
	sample := sampleRows(g, m.DataStart, opts.SampleRows)
	if len(sample) == 0 {
		return nil, stageErr(StageMap, KindEmptyInput, "no data rows after header row %d", m.HeaderRow+1)
	}

	m.DateHint.Pivot = opts.Pivot
	if m.DateHint.Order == OrderUnknown {
		var dates []string
		for _, f := range []Field{FieldTransactionDate, FieldValueDate} {
			if col, ok := m.Columns[f]; ok {
				dates = append(dates, columnValues(g, sample, col)...)
			}
		}
		m.DateHint.Order = InferDateOrder(dates)
	}

	var amounts []string
	for _, f := range []Field{FieldAmount, FieldDebit, FieldCredit, FieldBalanceAfter} {
		if col, ok := m.Columns[f]; ok {
			amounts = append(amounts, columnValues(g, sample, col)...)
		}
	}
	// The sampled values overrule a rule's separator when they clearly use
	// the other one, as 1C exports under a Russian header often do.
	if inferred := InferDecimalSeparator(amounts); inferred != 0 {
		m.DecimalSep = inferred
	}
	return m, nil
}

// positionalMapping assigns roles by content when no rule matched:
// date-like columns become transaction_date then value_date, the numeric
// column with the largest variance becomes amount and the column with the
// longest average text becomes description.
func positionalMapping(g *RawGrid, header int, opts MapOptions) (*Mapping, error) {
	start := header + 1
	sample := sampleRows(g, start, opts.SampleRows)
	if len(sample) == 0 {
		return nil, stageErr(StageMap, KindEmptyInput, "no data rows")
	}

	width := 0
	for _, r := range sample {
		width = max(width, len(g.Rows[r]))
	}

	type colStats struct {
		col      int
		nonEmpty int
		dates    int
		numbers  int
		variance float64
		avgLen   float64
	}
	stats := make([]colStats, width)
	for c := 0; c < width; c++ {
		st := colStats{col: c}
		var nums []float64
		totalLen := 0
		for _, v := range columnValues(g, sample, c) {
			st.nonEmpty++
			totalLen += len([]rune(v))
			if dateLike(v, opts.Pivot) {
				st.dates++
				continue
			}
			if d, err := ParseAmount(v, 0); err == nil {
				st.numbers++
				nums = append(nums, d.InexactFloat64())
			}
		}
		if st.nonEmpty > 0 {
			st.avgLen = float64(totalLen) / float64(st.nonEmpty)
		}
		st.variance = variance(nums)
		stats[c] = st
	}

	m := &Mapping{
		Rule:       PositionalRuleName,
		HeaderRow:  header,
		DataStart:  start,
		Columns:    make(map[Field]int),
		Sign:       SignSingle,
		Positional: true,
	}
	typed := make(map[int]bool)

	for _, st := range stats {
		if st.nonEmpty == 0 || st.dates*2 <= st.nonEmpty {
			continue
		}
		typed[st.col] = true
		if _, ok := m.Columns[FieldTransactionDate]; !ok {
			m.Columns[FieldTransactionDate] = st.col
		} else if _, ok := m.Columns[FieldValueDate]; !ok {
			m.Columns[FieldValueDate] = st.col
		}
	}

	amount, bestVar := -1, -1.0
	for _, st := range stats {
		if typed[st.col] || st.nonEmpty == 0 || st.numbers*2 <= st.nonEmpty {
			continue
		}
		typed[st.col] = true
		if st.variance > bestVar {
			amount, bestVar = st.col, st.variance
		}
	}
	if amount >= 0 {
		m.Columns[FieldAmount] = amount
	}

	desc, bestLen := -1, 0.0
	for _, st := range stats {
		if typed[st.col] || st.nonEmpty == 0 {
			continue
		}
		if st.avgLen > bestLen {
			desc, bestLen = st.col, st.avgLen
		}
	}
	if desc >= 0 {
		m.Columns[FieldDescription] = desc
	}

	var missing []string
	for _, f := range []Field{FieldTransactionDate, FieldDescription, FieldAmount} {
		if _, ok := m.Columns[f]; !ok {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return nil, stageErr(StageMap, KindUnmappableSchema,
			"no layout rule matched and content sniffing found no %s column", strings.Join(missing, ", "))
	}

	return finishMapping(g, m, opts)
}

// sampleRows returns up to n indexes of non-blank rows from start.
func sampleRows(g *RawGrid, start, n int) []int {
	var out []int
	for r := max(start, 0); r < len(g.Rows) && len(out) < n; r++ {
		if !isEmptyRow(g.Rows[r]) {
			out = append(out, r)
		}
	}
	return out
}

func columnValues(g *RawGrid, rows []int, col int) []string {
	var out []string
	for _, r := range rows {
		if v := g.Cell(r, col); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	v := 0.0
	for _, x := range xs {
		v += (x - mean) * (x - mean)
	}
	return v / float64(len(xs))
}

// InferDateOrder looks for a numeric date with a component above 12. It
// returns OrderUnknown when the samples never disambiguate or contradict
// each other.
func InferDateOrder(values []string) DateOrder {
	dayFirst, monthFirst := 0, 0
	for _, v := range values {
		s := CleanText(v)
		if m := timeSuffixRegex.FindStringSubmatch(s); m != nil {
			s = m[1]
		}
		m := numericDMYRegex.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		a, b := atoi(m[1]), atoi(m[3])
		switch {
		case a > 12 && b <= 12:
			dayFirst++
		case b > 12 && a <= 12:
			monthFirst++
		}
	}
	switch {
	case dayFirst > 0 && monthFirst == 0:
		return OrderDayFirst
	case monthFirst > 0 && dayFirst == 0:
		return OrderMonthFirst
	}
	return OrderUnknown
}

// InferDecimalSeparator votes over amount samples. Values carrying both
// separators, a repeated separator, or a separator followed by one or two
// digits are decisive; "1,234" is not. It returns 0 when undecided.
func InferDecimalSeparator(values []string) rune {
	votes := map[rune]int{}
	for _, v := range values {
		s := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' || r == '.' || r == ',' {
				return r
			}
			return -1
		}, v)
		dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
		switch {
		case dot >= 0 && comma >= 0:
			if dot > comma {
				votes['.']++
			} else {
				votes[',']++
			}
		case comma >= 0 && strings.Count(s, ",") > 1:
			votes['.']++
		case dot >= 0 && strings.Count(s, ".") > 1:
			votes[',']++
		case comma >= 0 && len(s)-comma-1 <= 2:
			votes[',']++
		case dot >= 0 && len(s)-dot-1 <= 2:
			votes['.']++
		}
	}

	switch {
	case votes['.'] > votes[',']:
		return '.'
	case votes[','] > votes['.']:
		return ','
	}
	return 0
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// String summarises the mapping for logs and archive notes.
func (m *Mapping) String() string {
	assign := m.Assignment()
	cols := make([]int, 0, len(assign))
	for c := range assign {
		cols = append(cols, c)
	}
	sort.Ints(cols)
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, fmt.Sprintf("%d=%s", c, assign[c]))
	}
	sep := "auto"
	if m.DecimalSep != 0 {
		sep = string(m.DecimalSep)
	}
	return fmt.Sprintf("rule=%s header=%d sign=%s dates=%s decimal=%s [%s]",
		m.Rule, m.HeaderRow, m.Sign, m.DateHint.Order, sep, strings.Join(parts, " "))
}
