// Package core loads tabular files into PostgreSQL tables whose schema is
// inferred from the data.
//
// The package holds the import logic independent of any transport. The
// HTTP server and the command-line importer both drive it through
// [Service].
//
// # Import Pipeline
//
// Each file goes through four steps:
//
//  1. The reader package parses and normalizes the file into a table.
//  2. The destination is resolved: an explicit table option, else a name
//     derived from the file name, else TABLE_NAME.
//  3. [SynthesizeColumns] picks a SQL name and type per column and
//     [Service.CreateTable] drops and recreates the destination table and
//     commits.
//  4. [Service.InsertRows] inserts the rows one at a time in a second
//     transaction, each under its own savepoint, so a bad row is counted
//     and skipped rather than failing the file. If this step loses the
//     connection the new table is left empty.
//
// A synthesized table gets an auto_id SERIAL primary key when no column
// name contains "id", and always an imported_at timestamp.
//
// # Batches
//
// [Service.ImportBatch] imports files in order. File-level errors are
// recorded on that file's [ImportOutcome]; a [ConnectionError] stops the
// batch. [BatchResult.Status] tells callers whether all, some or none of
// the files were imported.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]:
//
//   - FILE001-FILE006: file size, format, layout and missing uploads
//   - SCH001-SCH003: table creation
//   - ROW001-ROW004: rejected rows
//   - DB001-DB005: connectivity and missing tables
//   - IMP001-IMP004: concurrency, cancellation and rate limits
package core
