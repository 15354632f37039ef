package core

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "nil error returns empty", err: nil, wantCode: ""},
		{name: "unsupported container", err: stageErr(StageDetect, KindUnsupportedContainer, "binary"), wantCode: "DET001"},
		{name: "file too large", err: wrapStageErr(StageDetect, KindUnsupportedContainer, ErrFileTooLarge), wantCode: "DET002"},
		{name: "empty input", err: stageErr(StageLoad, KindEmptyInput, "0 rows"), wantCode: "LOAD001"},
		{name: "structural ambiguity", err: stageErr(StageLoad, KindStructuralAmbiguity, "x"), wantCode: "LOAD002"},
		{name: "unmappable schema", err: stageErr(StageMap, KindUnmappableSchema, "no amount"), wantCode: "MAP001"},
		{name: "no usable rows", err: stageErr(StageAssemble, KindNoUsableRows, "3 rows skipped"), wantCode: "ROW001"},
		{name: "wrapped stage error", err: fmt.Errorf("file a.csv: %w", stageErr(StageMap, KindUnmappableSchema, "")), wantCode: "MAP001"},
		{name: "run limiter busy", err: ErrTooManyRuns, wantCode: "RUN001"},
		{name: "wrapped busy", err: fmt.Errorf("trigger: %w", ErrTooManyRuns), wantCode: "RUN001"},
		{name: "ledger failure", err: errors.New("ledger: append: connection refused"), wantCode: "LEDGER001"},
		{name: "storage failure", err: errors.New("storage: write output: permission denied"), wantCode: "STORE001"},
		{name: "unknown", err: errors.New("something odd"), wantCode: "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.err != nil && got.Message == "" {
				t.Error("MapError() returned empty message")
			}
		})
	}
}

func TestMessageForKind(t *testing.T) {
	for _, kind := range []FailureKind{
		KindUnsupportedContainer, KindEmptyInput, KindStructuralAmbiguity,
		KindUnmappableSchema, KindNoUsableRows,
	} {
		if msg := MessageForKind(kind); msg.Code == "ERR000" {
			t.Errorf("MessageForKind(%s) fell back to the default message", kind)
		}
	}
	if got := MessageForKind("Bogus").Code; got != "ERR000" {
		t.Errorf("unknown kind code = %q, want ERR000", got)
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(stageErr(StageLoad, KindEmptyInput, ""))
	if !strings.Contains(got, "(Code: LOAD001)") {
		t.Errorf("FormatUserError() = %q, missing code", got)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestStageError(t *testing.T) {
	cause := errors.New("zip: not a valid zip file")
	err := wrapStageErr(StageLoad, KindUnsupportedContainer, cause)

	if !errors.Is(err, ErrUnsupportedContainer) {
		t.Error("stage error should match its kind sentinel")
	}
	if !errors.Is(err, cause) {
		t.Error("stage error should match its cause")
	}
	if errors.Is(err, ErrEmptyInput) {
		t.Error("stage error matched an unrelated sentinel")
	}

	want := "load: unsupported container: zip: not a valid zip file"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	kind, ok := FailureKindOf(fmt.Errorf("wrapped: %w", err))
	if !ok || kind != KindUnsupportedContainer {
		t.Errorf("FailureKindOf() = %q, %v", kind, ok)
	}
	if _, ok := FailureKindOf(cause); ok {
		t.Error("FailureKindOf() found a kind on a plain error")
	}
}

func TestRowError_Error(t *testing.T) {
	e := RowError{Row: 3, Kind: RowRequiredField, Field: FieldAmount, Value: "abc", Message: "unparsable amount"}
	if got := e.Error(); got != `row 3: required_field (amount="abc"): unparsable amount` {
		t.Errorf("Error() = %q", got)
	}
	e = RowError{Row: 7, Kind: RowFooter, Message: "totals or balance line"}
	if got := e.Error(); got != "row 7: footer: totals or balance line" {
		t.Errorf("Error() = %q", got)
	}
}
