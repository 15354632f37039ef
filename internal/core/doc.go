// Package core turns heterogeneous bank statement exports into one
// canonical transaction format.
//
// The package holds the whole normalization pipeline and no transport code.
// The HTTP server, the interval scheduler and the command-line tool all
// drive it through [Service].
//
// # Pipeline
//
// Each input goes through pure stages first:
//
//  1. [Detect] identifies the container (XLSX, XLS or delimited text) and,
//     for text, the character encoding
//  2. [LoadGrid] produces a rectangular grid, sniffing the delimiter
//  3. [MapSchema] assigns source columns to canonical fields using the
//     ordered [LayoutRule] set, falling back to content sniffing
//  4. [AssembleRecords] normalizes dates, amounts and currencies row by row
//
// [Service.ProcessFile] then writes the output with [WriteCanonical],
// records the fingerprint in the [Ledger] and moves the input to the
// archive together with an [ArchiveNote].
//
// # Layout Rules
//
// Rules are data. Built-in rules are registered at init time by the layouts
// package; operators add or override rules with a YAML file:
//
//	layouts:
//	  - name: acme-bank
//	    priority: 10
//	    sign: debit_credit
//	    columns:
//	      - {field: transaction_date, patterns: ["posting date"], required: true}
//	      - {field: description, patterns: ["details"], required: true}
//	      - {field: debit, patterns: ["money out"], required: true}
//	      - {field: credit, patterns: ["money in"], required: true}
//
// Lower priorities are tried first; equal priorities are ordered by name.
//
// # Idempotence
//
// The [Fingerprint] of an input's bytes is its identity. Content already in
// the ledger is never normalized twice, whatever its file name.
//
// # Error Handling
//
// A file-fatal problem is a [*StageError] carrying a [FailureKind]; the file
// is quarantined and the kind is recorded. Row problems are [RowError]s and
// never fail the file. Infrastructure errors leave the input in place.
// [MapError] turns any of them into an operator message with a code:
//
//   - DET001-DET002: container detection
//   - LOAD001-LOAD002: grid loading
//   - MAP001: schema mapping
//   - ROW001: no usable rows
//   - LEDGER001, STORE001, RUN001: infrastructure and concurrency
package core
