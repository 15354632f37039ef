package core

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ContainerFormat is the structural family of an input file.
type ContainerFormat string

const (
	FormatDelimited   ContainerFormat = "delimited"
	FormatSpreadsheet ContainerFormat = "spreadsheet"
)

// SpreadsheetKind distinguishes the workbook flavours the loader can open.
type SpreadsheetKind string

const (
	SpreadsheetNone SpreadsheetKind = ""
	SpreadsheetXLSX SpreadsheetKind = "xlsx"
	SpreadsheetXLS  SpreadsheetKind = "xls"
)

// Encoding names a text encoding detected for a delimited file.
type Encoding string

const (
	EncodingUTF8        Encoding = "utf-8"
	EncodingUTF8BOM     Encoding = "utf-8-bom"
	EncodingUTF16LE     Encoding = "utf-16le"
	EncodingUTF16BE     Encoding = "utf-16be"
	EncodingWindows1251 Encoding = "windows-1251"
	EncodingKOI8R       Encoding = "koi8-r"
	EncodingWindows1252 Encoding = "windows-1252"
)

// RawFile is an input file after codec detection. It is never modified.
type RawFile struct {
	Name               string
	Data               []byte
	Format             ContainerFormat
	Spreadsheet        SpreadsheetKind
	Encoding           Encoding // text containers only
	EncodingConfidence float64
	Sheets             []string // spreadsheet containers only
}

// RawGrid is the uniform table produced by the loader.
//
// Raw mirrors Rows for spreadsheets and holds the unformatted cell value
// (for example a date serial) when it differs from the displayed text.
// It is nil for delimited files.
type RawGrid struct {
	Rows      [][]string
	Raw       [][]string
	Delimiter rune   // delimited files only
	Sheet     string // spreadsheets only
	Width     int    // modal column count
}

// Cell returns the trimmed text at (row, col) or "" when out of range.
func (g *RawGrid) Cell(row, col int) string {
	if row < 0 || row >= len(g.Rows) || col < 0 || col >= len(g.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(g.Rows[row][col])
}

// RawCell returns the unformatted spreadsheet value at (row, col), if any.
func (g *RawGrid) RawCell(row, col int) string {
	if g.Raw == nil || row < 0 || row >= len(g.Raw) || col < 0 || col >= len(g.Raw[row]) {
		return ""
	}
	return g.Raw[row][col]
}

// Field is a role a source column can play. The canonical fields appear in
// the output; FieldDebit and FieldCredit are source roles that collapse into
// FieldAmount. The counterparty fields are kept on the record and summarized
// in the archive note but never written to the canonical file.
type Field string

const (
	FieldTransactionDate Field = "transaction_date"
	FieldValueDate       Field = "value_date"
	FieldDescription     Field = "description"
	FieldAmount          Field = "amount"
	FieldCurrency        Field = "currency"
	FieldBalanceAfter    Field = "balance_after"
	FieldReferenceID     Field = "reference_id"

	FieldDebit  Field = "debit"
	FieldCredit Field = "credit"

	FieldPayer      Field = "payer"
	FieldPayerTaxID Field = "payer_tax_id"
	FieldReceiver   Field = "receiver"
)

// CanonicalColumns is the exact header of every normalized output file.
var CanonicalColumns = []string{
	"transaction_date",
	"value_date",
	"description",
	"amount",
	"currency",
	"balance_after",
	"reference_id",
	"source_file",
	"source_row_index",
}

// CanonicalRecord is one normalized transaction.
// Amount is positive for inflows and negative for outflows.
type CanonicalRecord struct {
	TransactionDate civil.Date
	ValueDate       *civil.Date
	Description     string
	Amount          decimal.Decimal
	Currency        string
	BalanceAfter    *decimal.Decimal
	ReferenceID     string
	SourceFile      string
	SourceRowIndex  int

	Payer      string
	PayerTaxID string // digits only
	Receiver   string
}

// InputFile is one discovered file handed to the pipeline.
type InputFile struct {
	Name string
	Data []byte
}

// OutcomeStatus is the terminal state of one file in a run.
type OutcomeStatus string

const (
	StatusNormalized       OutcomeStatus = "normalized"
	StatusQuarantined      OutcomeStatus = "quarantined"
	StatusAlreadyProcessed OutcomeStatus = "already_processed"
	StatusFailed           OutcomeStatus = "failed"
)

// ProcessingOutcome describes what happened to one input file.
type ProcessingOutcome struct {
	FileName         string        `json:"file_name"`
	Fingerprint      string        `json:"fingerprint"`
	Status           OutcomeStatus `json:"status"`
	OutputPath       string        `json:"output_path,omitempty"`
	ArchivePath      string        `json:"archive_path,omitempty"`
	QuarantineReason FailureKind   `json:"quarantine_reason,omitempty"`
	Detail           string        `json:"detail,omitempty"`
	RecordCount      int           `json:"record_count"`
	RowErrorCount    int           `json:"row_error_count"`
	TotalRowCount    int           `json:"total_row_count"`
	Encoding         Encoding      `json:"encoding,omitempty"`
	Delimiter        string        `json:"delimiter,omitempty"`
	Sheet            string        `json:"sheet,omitempty"`
	Rule             string        `json:"rule,omitempty"`
	RowErrors        []RowError    `json:"row_errors,omitempty"`
}

// BatchResult collects the outcomes of one pipeline run.
type BatchResult struct {
	RunID      string              `json:"run_id"`
	Trigger    string              `json:"trigger,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Outcomes   []ProcessingOutcome `json:"outcomes"`
	Errors     []string            `json:"errors,omitempty"`
}

// Count returns how many outcomes have the given status.
func (b BatchResult) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// LedgerEntry records that a fingerprint has been processed. Entries are
// append-only.
type LedgerEntry struct {
	Fingerprint      string        `json:"fingerprint"`
	OriginalFileName string        `json:"original_file_name"`
	ProcessedAt      time.Time     `json:"processed_at"`
	Status           OutcomeStatus `json:"status"`
	OutputPath       string        `json:"output_path,omitempty"`
	Reason           FailureKind   `json:"reason,omitempty"`
}

// Ledger is the durable idempotency store.
//
// Append is compare-and-append: it stores entry only if no entry with the
// same fingerprint exists. It returns the entry that is stored afterwards and
// whether this call inserted it.
//
//go:generate mockgen -source=types.go -destination=mocks/mock_core.go -package=mocks
type Ledger interface {
	Lookup(ctx context.Context, fingerprint string) (LedgerEntry, bool, error)
	Append(ctx context.Context, entry LedgerEntry) (LedgerEntry, bool, error)
	List(ctx context.Context) ([]LedgerEntry, error)
}

// FileStore moves bytes between the input location, the output location and
// the archive. Names passed to the archive methods are relative to the
// archive root.
type FileStore interface {
	ListInputs(ctx context.Context) ([]string, error)
	ReadInput(ctx context.Context, name string) ([]byte, error)
	WriteOutput(ctx context.Context, name string, data []byte) (string, error)
	RemoveOutput(ctx context.Context, path string) error
	ArchiveInput(ctx context.Context, name, archivedName string) (string, error)
	WriteArchiveNote(ctx context.Context, archivedName string, data []byte) (string, error)
}
