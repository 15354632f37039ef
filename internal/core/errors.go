package core

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a whole file was quarantined.
type FailureKind string

const (
	KindUnsupportedContainer FailureKind = "UnsupportedContainer"
	KindEmptyInput           FailureKind = "EmptyInput"
	KindStructuralAmbiguity  FailureKind = "StructuralAmbiguity"
	KindUnmappableSchema     FailureKind = "UnmappableSchema"
	KindNoUsableRows         FailureKind = "NoUsableRows"
)

// Stage names the pipeline step that failed.
type Stage string

const (
	StageDetect   Stage = "detect"
	StageLoad     Stage = "load"
	StageMap      Stage = "map"
	StageAssemble Stage = "assemble"
)

var (
	ErrUnsupportedContainer = errors.New("unsupported container")
	ErrEmptyInput           = errors.New("empty input")
	ErrStructuralAmbiguity  = errors.New("structural ambiguity")
	ErrUnmappableSchema     = errors.New("unmappable schema")
	ErrNoUsableRows         = errors.New("no usable rows")

	ErrUnparsableDate   = errors.New("unparsable date")
	ErrAmbiguousDate    = fmt.Errorf("%w: day and month are ambiguous", ErrUnparsableDate)
	ErrUnparsableAmount = errors.New("unparsable amount")
	ErrEmptyValue       = errors.New("empty value")

	ErrFileTooLarge = errors.New("file too large")

	// ErrInputNotFound is returned by FileStore implementations when an
	// input disappeared between discovery and use.
	ErrInputNotFound = errors.New("input not found")
)

var kindSentinels = map[FailureKind]error{
	KindUnsupportedContainer: ErrUnsupportedContainer,
	KindEmptyInput:           ErrEmptyInput,
	KindStructuralAmbiguity:  ErrStructuralAmbiguity,
	KindUnmappableSchema:     ErrUnmappableSchema,
	KindNoUsableRows:         ErrNoUsableRows,
}

// StageError is a fatal-to-file failure raised by one pipeline stage.
// Err is the optional underlying cause.
type StageError struct {
	Stage  Stage
	Kind   FailureKind
	Detail string
	Err    error
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Stage, kindSentinels[e.Kind])
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the failure-kind sentinel and the cause to errors.Is.
func (e *StageError) Unwrap() []error {
	errs := []error{kindSentinels[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func stageErr(stage Stage, kind FailureKind, format string, args ...any) *StageError {
	return &StageError{Stage: stage, Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

func wrapStageErr(stage Stage, kind FailureKind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// FailureKindOf extracts the quarantine reason from err.
func FailureKindOf(err error) (FailureKind, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// RowErrorKind classifies why a row was skipped.
type RowErrorKind string

const (
	RowBlank               RowErrorKind = "blank"
	RowFooter              RowErrorKind = "footer"
	RowRequiredField       RowErrorKind = "required_field"
	RowDebitCreditConflict RowErrorKind = "debit_credit_conflict"
)

// RowError records one skipped row. Row is 1-based from the first data row.
type RowError struct {
	Row     int          `json:"row"`
	Kind    RowErrorKind `json:"kind"`
	Field   Field        `json:"field,omitempty"`
	Value   string       `json:"value,omitempty"`
	Message string       `json:"message"`
}

func (e RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("row %d: %s (%s=%q): %s", e.Row, e.Kind, e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Kind, e.Message)
}
