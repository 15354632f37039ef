package core

// assemble.go turns mapped grid rows into canonical records.
//
// Rows are checked in this order:
//  1. Blank rows are skipped
//  2. Totals and footer rows are skipped
//  3. Debit and credit both filled is an anomaly
//  4. Required fields (transaction_date, amount) must normalize
//
// Optional fields that fail to normalize are left absent. A blank
// description falls back to the payer and receiver cells. Skipped rows are
// reported as RowErrors; they never fail the file.

import (
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// AssembleOptions configures AssembleRecords.
type AssembleOptions struct {
	BaseCurrency string
	SourceFile   string
}

// Assembly is the per-file result: surviving records plus skipped rows.
type Assembly struct {
	Records   []CanonicalRecord
	RowErrors []RowError
	TotalRows int
}

// Net returns the sum of all record amounts.
func (a Assembly) Net() decimal.Decimal {
	sum := decimal.Zero
	for _, r := range a.Records {
		sum = sum.Add(r.Amount)
	}
	return sum
}

// footerKeywords label a totals or balance line. See isFooterRow.
var footerKeywords = []string{
	"итого", "всего", "обороты", "остаток", "сальдо",
	"total", "totals", "subtotal", "sub total", "grand total",
	"balance", "opening balance", "closing balance", "saldo",
}

// AssembleRecords builds records from every row after m.DataStart.
func AssembleRecords(g *RawGrid, m *Mapping, opts AssembleOptions) Assembly {
	var out Assembly
	for r := m.DataStart; r < len(g.Rows); r++ {
		out.TotalRows++
		rowNum := r - m.DataStart + 1

		rec, rowErr := assembleRow(g, m, r, opts)
		if rowErr != nil {
			rowErr.Row = rowNum
			out.RowErrors = append(out.RowErrors, *rowErr)
			continue
		}
		rec.SourceRowIndex = rowNum
		out.Records = append(out.Records, rec)
	}
	return out
}

func assembleRow(g *RawGrid, m *Mapping, r int, opts AssembleOptions) (CanonicalRecord, *RowError) {
	if isEmptyRow(g.Rows[r]) {
		return CanonicalRecord{}, &RowError{Kind: RowBlank, Message: "row is blank"}
	}

	cell := func(f Field) string {
		if col, ok := m.Columns[f]; ok {
			return g.Cell(r, col)
		}
		return ""
	}

	dateRaw := cell(FieldTransactionDate)
	date, dateErr := parseDateCell(g, m, r, FieldTransactionDate)

	var (
		amount       decimal.Decimal
		amountErr    error
		amountRaw    string
		amountAbsent bool
	)
	switch m.Sign {
	case SignDebitCredit:
		debit, credit := cell(FieldDebit), cell(FieldCredit)
		amountRaw = strings.TrimSpace(debit + " " + credit)
		amountAbsent = CleanText(debit) == "" && CleanText(credit) == ""
		amount, amountErr = CombineDebitCredit(debit, credit, m.DecimalSep, m.ZeroIsBlank)
	default:
		amountRaw = cell(FieldAmount)
		amountAbsent = CleanText(amountRaw) == ""
		amount, amountErr = ParseAmount(amountRaw, m.DecimalSep)
	}

	if isFooterRow(cell(FieldDescription), dateRaw, dateErr != nil, amountAbsent) {
		return CanonicalRecord{}, &RowError{Kind: RowFooter, Message: "totals or balance line"}
	}

	if errors.Is(amountErr, ErrDebitCreditConflict) {
		return CanonicalRecord{}, &RowError{
			Kind:    RowDebitCreditConflict,
			Field:   FieldAmount,
			Value:   amountRaw,
			Message: amountErr.Error(),
		}
	}
	if dateErr != nil {
		return CanonicalRecord{}, &RowError{
			Kind:    RowRequiredField,
			Field:   FieldTransactionDate,
			Value:   dateRaw,
			Message: dateErr.Error(),
		}
	}
	if amountErr != nil {
		return CanonicalRecord{}, &RowError{
			Kind:    RowRequiredField,
			Field:   FieldAmount,
			Value:   amountRaw,
			Message: amountErr.Error(),
		}
	}

	if m.InvertSign {
		amount = amount.Neg()
	}

	rec := CanonicalRecord{
		TransactionDate: date,
		Description:     CleanText(cell(FieldDescription)),
		Amount:          amount,
		Currency:        rowCurrency(m, cell(FieldCurrency), amountRaw, opts.BaseCurrency),
		ReferenceID:     CleanText(cell(FieldReferenceID)),
		SourceFile:      opts.SourceFile,
		Payer:           CleanText(cell(FieldPayer)),
		PayerTaxID:      DigitsOnly(cell(FieldPayerTaxID)),
		Receiver:        CleanText(cell(FieldReceiver)),
	}
	if rec.Description == "" {
		rec.Description = counterpartyLabel(rec.Payer, rec.Receiver)
	}

	if _, ok := m.Columns[FieldValueDate]; ok {
		if vd, err := parseDateCell(g, m, r, FieldValueDate); err == nil {
			rec.ValueDate = &vd
		}
	}
	if raw := cell(FieldBalanceAfter); raw != "" {
		if bal, err := ParseAmount(raw, m.DecimalSep); err == nil {
			rec.BalanceAfter = &bal
		}
	}

	return rec, nil
}

// counterpartyLabel describes a row with no description of its own by who
// paid whom.
func counterpartyLabel(payer, receiver string) string {
	switch {
	case payer != "" && receiver != "":
		return payer + " -> " + receiver
	case payer != "":
		return payer
	default:
		return receiver
	}
}

// parseDateCell parses the displayed text and, for spreadsheets, falls back
// to the unformatted cell value when it is a date serial.
func parseDateCell(g *RawGrid, m *Mapping, r int, f Field) (civil.Date, error) {
	col, ok := m.Columns[f]
	if !ok {
		return civil.Date{}, fmt.Errorf("%w: column not mapped", ErrUnparsableDate)
	}
	d, err := ParseDate(g.Cell(r, col), m.DateHint)
	if err == nil {
		return d, nil
	}
	if raw := g.RawCell(r, col); raw != "" {
		if sd, ok := ExcelSerialDate(raw); ok {
			return sd, nil
		}
	}
	return civil.Date{}, err
}

// rowCurrency picks the currency column when it normalizes, then the rule's
// fixed currency, then a symbol inside the amount, then the base currency.
func rowCurrency(m *Mapping, currencyCell, amountRaw, base string) string {
	if code, ok := NormalizeCurrency(currencyCell); ok {
		return code
	}
	if m.Currency != "" {
		return m.Currency
	}
	if code, ok := CurrencyInAmount(amountRaw); ok {
		return code
	}
	return base
}

// isFooterRow looks for a totals label in the description or date cell,
// where statements put it. An undated row needs the label to open the cell
// ("Итого за период"); a dated row without an amount needs the cell to be
// the label alone, so "Balance transfer" stays a transaction.
func isFooterRow(desc, date string, undated, amountAbsent bool) bool {
	for _, c := range []string{desc, date} {
		h := NormalizeHeader(c)
		if h == "" {
			continue
		}
		for _, kw := range footerKeywords {
			switch {
			case h == kw && (undated || amountAbsent):
				return true
			case undated && strings.HasPrefix(h, kw+" "):
				return true
			}
		}
	}
	return false
}
