package core

// convert.go turns raw statement cells into canonical typed values.
//
// These functions handle the messy reality of bank exports:
//   - Day-first, month-first and ISO dates with 2- or 4-digit years
//   - Comma or dot decimal separators with space, dot or apostrophe grouping
//   - Currency symbols and codes glued to amounts
//   - Accounting negatives "(100.00)" and trailing minus "100.00-"
//   - Excel formula prefixes (="value") and stray quotes
//
// Failures are returned as errors wrapping ErrUnparsableDate or
// ErrUnparsableAmount so the assembler can tell required-field failures
// from optional ones.

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// DefaultTwoDigitYearPivot maps YY < 70 to 20YY and YY >= 70 to 19YY.
const DefaultTwoDigitYearPivot = 70

// ErrDebitCreditConflict marks a row where both debit and credit are filled.
var ErrDebitCreditConflict = errors.New("both debit and credit are non-empty")

// DateOrder says how to read an ambiguous numeric date.
type DateOrder int

const (
	OrderUnknown DateOrder = iota
	OrderDayFirst
	OrderMonthFirst
)

func (o DateOrder) String() string {
	switch o {
	case OrderDayFirst:
		return "day-first"
	case OrderMonthFirst:
		return "month-first"
	}
	return "unknown"
}

// DateHint carries what a layout or sampling knows about a file's dates.
type DateHint struct {
	Layout string // Go time layout tried first
	Order  DateOrder
	Pivot  int // two-digit year pivot; <= 0 uses DefaultTwoDigitYearPivot
}

func (h DateHint) pivot() int {
	if h.Pivot <= 0 {
		return DefaultTwoDigitYearPivot
	}
	return h.Pivot
}

var (
	timeSuffixRegex = regexp.MustCompile(`^(\S+?)(?:[ T]\d{1,2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:?\d{2})?)$`)
	isoDateRegex    = regexp.MustCompile(`^(\d{4})[-./](\d{1,2})[-./](\d{1,2})$`)
	compactISORegex = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	numericDMYRegex = regexp.MustCompile(`^(\d{1,2})([-./])(\d{1,2})([-./])(\d{4}|\d{2})$`)

	amountRegex = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)
)

// textMonthLayouts are tried after the numeric forms.
var textMonthLayouts = []string{
	"2 Jan 2006", "02 Jan 2006", "2-Jan-2006", "02-Jan-2006", "02-Jan-06", "2-Jan-06",
	"Jan 2, 2006", "Jan 02, 2006", "January 2, 2006", "2 January 2006",
	"02 Jan 06", "2 Jan 06",
}

// russianMonths rewrites Russian month names to English abbreviations so
// the text layouts above apply. Longer prefixes come first.
var russianMonths = []struct{ prefix, month string }{
	{"янв", "Jan"}, {"фев", "Feb"}, {"мар", "Mar"}, {"апр", "Apr"},
	{"май", "May"}, {"мая", "May"}, {"июн", "Jun"}, {"июл", "Jul"},
	{"авг", "Aug"}, {"сен", "Sep"}, {"окт", "Oct"}, {"ноя", "Nov"}, {"дек", "Dec"},
}

// ParseDate converts a cell to a calendar date.
//
// Order of attempts: the hinted layout, ISO year-first forms, numeric
// day/month/year forms, then forms with month names. A numeric date whose
// day and month are both <= 12 and differ is ambiguous; it is resolved by
// hint.Order, or by the dotted convention (DD.MM.YYYY), and otherwise
// rejected with ErrAmbiguousDate.
func ParseDate(raw string, hint DateHint) (civil.Date, error) {
	s := CleanText(raw)
	if s == "" {
		return civil.Date{}, fmt.Errorf("%w: %w", ErrUnparsableDate, ErrEmptyValue)
	}

	if hint.Layout != "" {
		if t, err := time.Parse(hint.Layout, s); err == nil {
			return validDate(adjustTwoDigitYear(t, hint.Layout, hint.pivot()), raw)
		}
	}

	if m := timeSuffixRegex.FindStringSubmatch(s); m != nil {
		s = m[1]
	}

	if m := isoDateRegex.FindStringSubmatch(s); m != nil {
		return ymd(m[1], m[2], m[3], raw)
	}
	if m := compactISORegex.FindStringSubmatch(s); m != nil {
		return ymd(m[1], m[2], m[3], raw)
	}

	if m := numericDMYRegex.FindStringSubmatch(s); m != nil && m[2] == m[4] {
		return parseNumericDMY(m[1], m[3], m[5], m[2], hint, raw)
	}

	text := translateMonths(s)
	for _, layout := range textMonthLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return validDate(adjustTwoDigitYear(t, layout, hint.pivot()), raw)
		}
	}

	return civil.Date{}, fmt.Errorf("%w: %q", ErrUnparsableDate, raw)
}

func parseNumericDMY(first, second, year, sep string, hint DateHint, raw string) (civil.Date, error) {
	a, _ := strconv.Atoi(first)
	b, _ := strconv.Atoi(second)
	y, _ := strconv.Atoi(year)
	if len(year) == 2 {
		y = expandYear(y, hint.pivot())
	}

	var day, month int
	switch {
	case a > 12 && b > 12:
		return civil.Date{}, fmt.Errorf("%w: %q", ErrUnparsableDate, raw)
	case a > 12:
		day, month = a, b
	case b > 12:
		month, day = a, b
	case a == b:
		day, month = a, b
	case hint.Order == OrderDayFirst:
		day, month = a, b
	case hint.Order == OrderMonthFirst:
		month, day = a, b
	case sep == ".":
		day, month = a, b
	default:
		return civil.Date{}, fmt.Errorf("%w: %q", ErrAmbiguousDate, raw)
	}

	return checkDate(civil.Date{Year: y, Month: time.Month(month), Day: day}, raw)
}

func ymd(year, month, day, raw string) (civil.Date, error) {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	return checkDate(civil.Date{Year: y, Month: time.Month(m), Day: d}, raw)
}

func checkDate(d civil.Date, raw string) (civil.Date, error) {
	if !d.IsValid() {
		return civil.Date{}, fmt.Errorf("%w: %q is not a calendar date", ErrUnparsableDate, raw)
	}
	return d, nil
}

func validDate(t time.Time, raw string) (civil.Date, error) {
	return checkDate(civil.DateOf(t), raw)
}

// expandYear applies the two-digit year pivot.
func expandYear(yy, pivot int) int {
	if yy < pivot {
		return 2000 + yy
	}
	return 1900 + yy
}

// adjustTwoDigitYear replaces Go's built-in century guess for layouts with
// a two-digit year.
func adjustTwoDigitYear(t time.Time, layout string, pivot int) time.Time {
	if !strings.Contains(layout, "06") || strings.Contains(layout, "2006") {
		return t
	}
	want := expandYear(t.Year()%100, pivot)
	return t.AddDate(want-t.Year(), 0, 0)
}

func translateMonths(s string) string {
	lower := strings.ToLower(s)
	if !strings.ContainsFunc(lower, func(r rune) bool { return unicode.Is(unicode.Cyrillic, r) }) {
		return s
	}
	fields := strings.FieldsFunc(lower, func(r rune) bool { return r == ' ' || r == '-' || r == '.' || r == ',' })
	out := fields[:0]
	for _, f := range fields {
		if f == "г" || f == "года" {
			continue
		}
		for _, rm := range russianMonths {
			if strings.HasPrefix(f, rm.prefix) {
				f = rm.month
				break
			}
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}

// ParseDateFormat converts a human layout such as "DD.MM.YYYY" or
// "MM/DD/YY" into a DateHint. A Go layout ("02.01.2006") is accepted as is.
func ParseDateFormat(format string) DateHint {
	if format == "" {
		return DateHint{}
	}
	layout := format
	if !strings.Contains(format, "2006") && !strings.Contains(format, "06") {
		r := strings.NewReplacer("YYYY", "2006", "YY", "06", "MMM", "Jan", "MM", "01", "DD", "02", "M", "1", "D", "2")
		layout = r.Replace(format)
	}

	hint := DateHint{Layout: layout}
	day := strings.Index(layout, "02")
	if day < 0 {
		day = strings.Index(layout, "2")
	}
	month := strings.Index(layout, "01")
	if month < 0 {
		month = strings.Index(layout, "Jan")
	}
	if strings.HasPrefix(layout, "2006") {
		return hint
	}
	switch {
	case day >= 0 && month >= 0 && day < month:
		hint.Order = OrderDayFirst
	case day >= 0 && month >= 0 && month < day:
		hint.Order = OrderMonthFirst
	}
	return hint
}

// ExcelSerialDate converts a spreadsheet date serial ("45296") to a date.
func ExcelSerialDate(raw string) (civil.Date, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || f < 1 || f > 2958465 {
		return civil.Date{}, false
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return civil.Date{}, false
	}
	return civil.DateOf(t), true
}

// ParseAmount converts a cell to a signed decimal.
//
// sep is the decimal separator ('.' or ','); 0 infers it per cell: with both
// separators present the last one is decimal, a lone comma followed by
// exactly three digits is a thousands separator, and a separator repeated
// more than once is always grouping.
func ParseAmount(raw string, sep rune) (decimal.Decimal, error) {
	s := CleanText(raw)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: %w", ErrUnparsableAmount, ErrEmptyValue)
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "\u2212", "-")
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "DR"):
		neg = !neg
		s = strings.TrimSpace(s[:len(s)-2])
	case strings.HasSuffix(upper, "CR"):
		s = strings.TrimSpace(s[:len(s)-2])
	}

	s = stripCurrencyAffixes(s)
	switch {
	case strings.HasPrefix(s, "-"):
		neg = !neg
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		neg = !neg
		s = s[:len(s)-1]
	}
	s = stripCurrencyAffixes(s)

	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\'', '\u2019':
			return -1
		}
		return r
	}, s)

	s, err := normalizeSeparators(s, sep)
	if err != nil || !amountRegex.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrUnparsableAmount, raw)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrUnparsableAmount, raw)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

func normalizeSeparators(s string, sep rune) (string, error) {
	switch sep {
	case '.', ',':
		other := ','
		if sep == ',' {
			other = '.'
		}
		if out, ok := applySeparators(s, sep, other); ok {
			return out, nil
		}
		// A cell written in the other convention ("-100.00" under a comma
		// hint) is read that way rather than having its point dropped.
		if out, ok := applySeparators(s, other, sep); ok {
			return out, nil
		}
		return "", fmt.Errorf("%q does not fit decimal separator %q", s, sep)
	case 0:
	default:
		return "", fmt.Errorf("unsupported decimal separator %q", sep)
	}

	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", "."), nil
		}
		return strings.ReplaceAll(s, ",", ""), nil
	case comma >= 0:
		if strings.Count(s, ",") > 1 || isThousandsGroup(s, comma) {
			return strings.ReplaceAll(s, ",", ""), nil
		}
		return strings.Replace(s, ",", ".", 1), nil
	case dot >= 0:
		if strings.Count(s, ".") > 1 {
			return strings.ReplaceAll(s, ".", ""), nil
		}
	}
	return s, nil
}

// applySeparators reads s with dec as the decimal separator and grp as
// grouping. grp is only accepted between three-digit groups before the
// decimal part; anything else reports false.
func applySeparators(s string, dec, grp rune) (string, bool) {
	intPart, frac, hasFrac := s, "", false
	if i := strings.LastIndex(s, string(dec)); i >= 0 {
		intPart, frac, hasFrac = s[:i], s[i+1:], true
	}
	if strings.ContainsRune(intPart, dec) || strings.ContainsRune(frac, grp) {
		return "", false
	}
	if strings.ContainsRune(intPart, grp) {
		groups := strings.Split(intPart, string(grp))
		if len(groups[0]) < 1 || len(groups[0]) > 3 {
			return "", false
		}
		for _, g := range groups[1:] {
			if len(g) != 3 {
				return "", false
			}
		}
		intPart = strings.Join(groups, "")
	}
	if hasFrac {
		return intPart + "." + frac, true
	}
	return intPart, true
}

// isThousandsGroup reports whether the separator at i is followed by exactly
// three digits and preceded by one to three digits that do not start with 0.
func isThousandsGroup(s string, i int) bool {
	before, after := s[:i], s[i+1:]
	return len(after) == 3 && len(before) >= 1 && len(before) <= 3 && before[0] != '0'
}

// stripCurrencyAffixes removes currency symbols and alphabetic codes such as
// "USD", "руб." or "р." from both ends of s.
func stripCurrencyAffixes(s string) string {
	isAffix := func(r rune) bool { return unicode.Is(unicode.Sc, r) || unicode.IsLetter(r) }
	for {
		before := s
		s = strings.TrimSpace(s)
		s = strings.TrimLeftFunc(s, isAffix)
		// an abbreviation dot belongs to the word before it
		if t := strings.TrimSuffix(s, "."); t != s && t != "" {
			if r, _ := utf8.DecodeLastRuneInString(t); unicode.IsLetter(r) {
				s = t
			}
		}
		s = strings.TrimRightFunc(s, isAffix)
		s = strings.TrimSpace(s)
		if s == before {
			return s
		}
	}
}

// CombineDebitCredit collapses unsigned debit and credit cells into one
// signed amount: credit minus debit. The sign written in either cell is
// ignored. With zeroIsBlank a zero value counts as empty.
func CombineDebitCredit(debitRaw, creditRaw string, sep rune, zeroIsBlank bool) (decimal.Decimal, error) {
	debit, hasDebit, err := optionalAmount(debitRaw, sep, zeroIsBlank)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("debit: %w", err)
	}
	credit, hasCredit, err := optionalAmount(creditRaw, sep, zeroIsBlank)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("credit: %w", err)
	}

	switch {
	case hasDebit && hasCredit:
		return decimal.Decimal{}, ErrDebitCreditConflict
	case hasCredit:
		return credit.Abs(), nil
	case hasDebit:
		return debit.Abs().Neg(), nil
	}
	return decimal.Decimal{}, fmt.Errorf("%w: %w", ErrUnparsableAmount, ErrEmptyValue)
}

func optionalAmount(raw string, sep rune, zeroIsBlank bool) (decimal.Decimal, bool, error) {
	if CleanText(raw) == "" {
		return decimal.Decimal{}, false, nil
	}
	d, err := ParseAmount(raw, sep)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	if zeroIsBlank && d.IsZero() {
		return decimal.Decimal{}, false, nil
	}
	return d, true, nil
}

// FormatAmount renders d with at least two fractional digits and no
// grouping, keeping any extra precision the value carries.
func FormatAmount(d decimal.Decimal) string {
	scale := int32(2)
	if -d.Exponent() > scale {
		scale = -d.Exponent()
	}
	return d.StringFixed(scale)
}

// currencyAliases maps symbols, local abbreviations and ISO 4217 numeric
// codes to alphabetic codes. Keys are upper case.
var currencyAliases = map[string]string{
	"$": "USD", "US$": "USD", "USD": "USD", "840": "USD",
	"€": "EUR", "EUR": "EUR", "978": "EUR",
	"£": "GBP", "GBP": "GBP", "826": "GBP",
	"₽": "RUB", "РУБ": "RUB", "РУБ.": "RUB", "Р.": "RUB", "RUR": "RUB", "643": "RUB", "810": "RUB",
	"¥": "JPY", "392": "JPY",
	"₴": "UAH", "ГРН": "UAH", "ГРН.": "UAH", "980": "UAH",
	"₸": "KZT", "ТГ": "KZT", "ТЕНГЕ": "KZT", "398": "KZT",
	"BR": "BYN", "933": "BYN",
	"ZŁ": "PLN", "ZL": "PLN", "985": "PLN",
	"₺": "TRY", "949": "TRY",
	"₹": "INR", "356": "INR",
	"CHF": "CHF", "FR.": "CHF", "756": "CHF",
	"CN¥": "CNY", "156": "CNY",
}

// NormalizeCurrency maps a currency cell to a 3-letter ISO code.
func NormalizeCurrency(raw string) (string, bool) {
	s := strings.ToUpper(CleanText(raw))
	if s == "" {
		return "", false
	}
	if code, ok := currencyAliases[s]; ok {
		return code, true
	}
	if len(s) == 3 && strings.IndexFunc(s, func(r rune) bool { return r < 'A' || r > 'Z' }) < 0 {
		return s, true
	}
	return "", false
}

// CurrencyInAmount finds a currency symbol or code written inside an amount
// cell such as "$1,200.00" or "100,00 руб.".
func CurrencyInAmount(raw string) (string, bool) {
	s := CleanText(raw)
	for _, r := range s {
		if unicode.Is(unicode.Sc, r) {
			if code, ok := currencyAliases[string(r)]; ok {
				return code, true
			}
		}
	}
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '.'
	}) {
		tok = strings.Trim(tok, ".")
		if tok == "" {
			continue
		}
		if code, ok := NormalizeCurrency(tok); ok {
			return code, true
		}
		if code, ok := NormalizeCurrency(tok + "."); ok {
			return code, true
		}
	}
	return "", false
}

// DigitsOnly keeps the decimal digits of a tax identifier cell, so
// "ИНН 7707 083893" becomes "7707083893".
func DigitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// CleanText trims, collapses internal whitespace and removes spreadsheet
// artifacts: the ="..." formula wrapper and surrounding quotes.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	s = strings.Trim(s, `"`)
	return strings.Join(strings.Fields(s), " ")
}
