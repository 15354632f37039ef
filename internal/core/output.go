package core

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ArchiveKind is the top-level archive folder an input is moved to.
type ArchiveKind string

const (
	ArchiveProcessed   ArchiveKind = "processed"
	ArchiveQuarantined ArchiveKind = "quarantined"
	ArchiveDuplicate   ArchiveKind = "duplicate"
)

// archiveTimeLayout sorts lexically in processing order.
const archiveTimeLayout = "20060102T150405.000000000Z"

// OutputName derives the canonical output file name from an input name.
func OutputName(input string) string {
	base := filepath.Base(strings.ReplaceAll(input, `\`, "/"))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return "normalized_" + stem + ".csv"
}

// ArchiveName is where an input lands in the archive:
// <kind>/<UTC timestamp>_<original name>.
func ArchiveName(kind ArchiveKind, at time.Time, input string) string {
	base := filepath.Base(strings.ReplaceAll(input, `\`, "/"))
	return path.Join(string(kind), at.UTC().Format(archiveTimeLayout)+"_"+base)
}

// NoteName is the companion record stored next to an archived input.
func NoteName(archivedName string) string {
	return archivedName + ".json"
}

// WriteCanonical writes recs as UTF-8 comma-delimited text with the
// canonical header.
func WriteCanonical(w io.Writer, recs []CanonicalRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CanonicalColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	row := make([]string, len(CanonicalColumns))
	for _, r := range recs {
		row[0] = r.TransactionDate.String()
		row[1] = ""
		if r.ValueDate != nil {
			row[1] = r.ValueDate.String()
		}
		row[2] = r.Description
		row[3] = FormatAmount(r.Amount)
		row[4] = r.Currency
		row[5] = ""
		if r.BalanceAfter != nil {
			row[5] = FormatAmount(*r.BalanceAfter)
		}
		row[6] = r.ReferenceID
		row[7] = r.SourceFile
		row[8] = strconv.Itoa(r.SourceRowIndex)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", r.SourceRowIndex, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCanonical parses a file produced by WriteCanonical.
func ReadCanonical(r io.Reader) ([]CanonicalRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CanonicalColumns)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range CanonicalColumns {
		if header[i] != name {
			return nil, fmt.Errorf("column %d is %q, want %q", i+1, header[i], name)
		}
	}

	var recs []CanonicalRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		rec, err := parseCanonicalRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		recs = append(recs, rec)
	}
}

func parseCanonicalRow(row []string) (CanonicalRecord, error) {
	var (
		rec CanonicalRecord
		err error
	)
	if rec.TransactionDate, err = civil.ParseDate(row[0]); err != nil {
		return rec, fmt.Errorf("transaction_date: %w", err)
	}
	if row[1] != "" {
		vd, err := civil.ParseDate(row[1])
		if err != nil {
			return rec, fmt.Errorf("value_date: %w", err)
		}
		rec.ValueDate = &vd
	}
	rec.Description = row[2]
	if rec.Amount, err = decimal.NewFromString(row[3]); err != nil {
		return rec, fmt.Errorf("amount: %w", err)
	}
	rec.Currency = row[4]
	if row[5] != "" {
		bal, err := decimal.NewFromString(row[5])
		if err != nil {
			return rec, fmt.Errorf("balance_after: %w", err)
		}
		rec.BalanceAfter = &bal
	}
	rec.ReferenceID = row[6]
	rec.SourceFile = row[7]
	if rec.SourceRowIndex, err = strconv.Atoi(row[8]); err != nil {
		return rec, fmt.Errorf("source_row_index: %w", err)
	}
	return rec, nil
}

// ArchiveNote is the companion record written next to every archived input.
type ArchiveNote struct {
	FileName           string         `json:"file_name"`
	Fingerprint        string         `json:"fingerprint"`
	Status             OutcomeStatus  `json:"status"`
	ArchivedAt         time.Time      `json:"archived_at"`
	Reason             FailureKind    `json:"reason,omitempty"`
	Code               string         `json:"code,omitempty"`
	Message            string         `json:"message,omitempty"`
	Action             string         `json:"action,omitempty"`
	Detail             string         `json:"detail,omitempty"`
	Encoding           Encoding       `json:"encoding,omitempty"`
	EncodingConfidence float64        `json:"encoding_confidence,omitempty"`
	Delimiter          string         `json:"delimiter,omitempty"`
	Sheet              string         `json:"sheet,omitempty"`
	Rule               string         `json:"rule,omitempty"`
	Mapping            string         `json:"mapping,omitempty"`
	OutputPath         string         `json:"output_path,omitempty"`
	TotalRows          int            `json:"total_rows"`
	RecordCount        int            `json:"record_count"`
	RowErrorCount      int            `json:"row_error_count"`
	RowErrors          []RowError     `json:"row_errors,omitempty"`
	Counterparties     []Counterparty `json:"counterparties,omitempty"`
}

// MaxNoteCounterparties caps the counterparty summary in an archive note.
const MaxNoteCounterparties = 20

// Counterparty totals the records one payer or receiver appears on.
type Counterparty struct {
	Name    string          `json:"name"`
	TaxID   string          `json:"tax_id,omitempty"`
	Role    Field           `json:"role"`
	Records int             `json:"records"`
	Net     decimal.Decimal `json:"net"`
}

// Counterparties groups records by payer and by receiver, busiest first,
// keeping at most limit entries. Records without either cell are ignored.
func Counterparties(recs []CanonicalRecord, limit int) []Counterparty {
	type key struct {
		role        Field
		name, taxID string
	}
	byKey := make(map[key]*Counterparty)
	var order []key

	add := func(k key, amount decimal.Decimal) {
		if k.name == "" && k.taxID == "" {
			return
		}
		c, ok := byKey[k]
		if !ok {
			c = &Counterparty{Name: k.name, TaxID: k.taxID, Role: k.role, Net: decimal.Zero}
			byKey[k] = c
			order = append(order, k)
		}
		c.Records++
		c.Net = c.Net.Add(amount)
	}
	for _, r := range recs {
		add(key{FieldPayer, r.Payer, r.PayerTaxID}, r.Amount)
		add(key{FieldReceiver, r.Receiver, ""}, r.Amount)
	}

	out := make([]Counterparty, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Records > out[j].Records })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Marshal renders the note as indented JSON.
func (n ArchiveNote) Marshal() ([]byte, error) {
	return json.MarshalIndent(n, "", "  ")
}

// delimiterName renders a delimiter for logs and notes.
func delimiterName(d rune) string {
	switch d {
	case 0:
		return ""
	case '\t':
		return "tab"
	case ',':
		return "comma"
	case ';':
		return "semicolon"
	}
	return string(d)
}
