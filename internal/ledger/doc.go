// Package ledger provides durable core.Ledger backends.
//
// Every backend implements Append as compare-and-append: an entry is stored
// only if its fingerprint is still absent at the moment of the write, so two
// runs racing on the same input agree on a single winner.
//
//   - FileLedger stores one JSON document per fingerprint and relies on
//     link(2) failing when the target exists.
//   - PostgresLedger relies on the primary key and ON CONFLICT DO NOTHING.
//   - MemoryLedger is process-local and meant for tests and dry runs.
package ledger
