// Package audit records one audit entry per outbound integration call.
//
// Writes are fire-and-forget: Insert returns immediately and the record is
// stored in the background. A failed write is logged and counted but never
// reaches the caller. Close waits for pending writes during shutdown.
package audit
