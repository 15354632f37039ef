package core

// # Error Codes Reference
//
// Operator-facing messages for quarantined files and failed runs. The code is
// written into every archive note so an operator can quote it.
//
// # Detection Errors (DET001-DET099)
//
//	DET001 - Unsupported container: neither a spreadsheet nor delimited text
//	         Action: Export the statement as CSV or XLSX and resubmit
//	DET002 - File too large: input exceeds the configured size limit
//	         Action: Split the statement by period and resubmit
//
// # Loading Errors (LOAD001-LOAD099)
//
//	LOAD001 - Empty input: no data rows found
//	LOAD002 - Structural ambiguity: no delimiter gives a consistent column count
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - Unmappable schema: date, description and amount columns not all found
//
// # Row Errors (ROW001-ROW099)
//
//	ROW001 - No usable rows: every data row was skipped
//
// # Infrastructure Errors (LEDGER001, STORE001, RUN001)
//
//	LEDGER001 - Ledger unavailable
//	STORE001  - Storage unavailable
//	RUN001    - A run is already in progress

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides operator-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

var kindMessages = map[FailureKind]UserMessage{
	KindUnsupportedContainer: {
		Message: "The file is neither a spreadsheet nor delimited text",
		Action:  "Export the statement as CSV or XLSX and resubmit",
		Code:    "DET001",
	},
	KindEmptyInput: {
		Message: "The file contains no data rows",
		Action:  "Check that the export covers a period with transactions",
		Code:    "LOAD001",
	},
	KindStructuralAmbiguity: {
		Message: "No delimiter gives a consistent column count",
		Action:  "Re-export using comma, semicolon or tab separators",
		Code:    "LOAD002",
	},
	KindUnmappableSchema: {
		Message: "Date, description and amount columns could not all be identified",
		Action:  "Add a layout rule for this bank or rename the column headers",
		Code:    "MAP001",
	},
	KindNoUsableRows: {
		Message: "Every data row was skipped",
		Action:  "Review the row errors in the archive note and resubmit a corrected file",
		Code:    "ROW001",
	},
}

var (
	fileTooLargeMessage = UserMessage{
		Message: "The file exceeds the maximum size",
		Action:  "Split the statement by period and resubmit",
		Code:    "DET002",
	}
	runBusyMessage = UserMessage{
		Message: "A normalization run is already in progress",
		Action:  "Wait for the current run to finish and trigger again",
		Code:    "RUN001",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to messages for
// errors that are not stage errors. The first match wins.
var errorPatterns = []errorPattern{
	{pattern: "file too large", msg: fileTooLargeMessage},
	{pattern: "too many concurrent runs", msg: runBusyMessage},
	{
		pattern: "ledger",
		msg: UserMessage{
			Message: "The idempotency ledger is unavailable",
			Action:  "Check the ledger backend; inputs were left in place for the next run",
			Code:    "LEDGER001",
		},
	},
	{
		pattern: "storage",
		msg: UserMessage{
			Message: "The file store is unavailable",
			Action:  "Check storage permissions; inputs were left in place for the next run",
			Code:    "STORE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the service logs for details",
	Code:    "ERR000",
}

// MapError converts an error to an operator-friendly message.
// Stage errors map by failure kind; anything else is matched against
// errorPatterns and falls back to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if errors.Is(err, ErrTooManyRuns) {
		return runBusyMessage
	}

	if kind, ok := FailureKindOf(err); ok {
		if errors.Is(err, ErrFileTooLarge) {
			return fileTooLargeMessage
		}
		if msg, ok := kindMessages[kind]; ok {
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// MessageForKind returns the message for a quarantine reason.
func MessageForKind(kind FailureKind) UserMessage {
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
