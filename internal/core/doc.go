// Package core runs files through the staging pipeline.
//
// A [Pipeline] takes one submission from checksum to loaded rows:
//
//  1. The SHA-256 of the raw bytes is looked up among COMPLETED manifests.
//     A match returns that manifest with AlreadyProcessed set.
//  2. The target table comes from the filename router or is generated.
//  3. A manifest is created (PENDING) and begun (PROCESSING).
//  4. Lines are validated and repaired, then transformed.
//  5. Columns come from the header row, or for headerless files from the
//     existing table's column order.
//  6. Rows are bulk loaded and tagged with the batch id in one transaction.
//  7. The manifest is completed, or failed with the error chain and stack.
//
// Archives fan out to one child ingest per eligible member under a parent
// manifest ([Pipeline.IngestArchive]). Workbooks are converted to CSV from
// their first sheet before ingest.
//
// # Error Handling
//
// Errors are mapped to user-facing messages with [MapError]. Codes are
// grouped by source:
//
//   - ROUTE001, VAL001, SCH001, LOAD001: typed ingestion errors
//   - DB001-DB005: database errors
//   - FILE001-FILE005: file and archive errors
//   - RATE001: concurrency limit
//   - NF001, WATCH001-WATCH003: lookups and the watch folder
package core
