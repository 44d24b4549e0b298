// Package lifecycle drives Media through the vault's status state machine.
//
// Engine wraps the vault store, the content store, and the notification bus:
// imports seal files and create Local media, user commands enqueue and retry,
// and the upload driver reports BeginUpload, ReportProgress, and ReportResult
// as it works. Every status write is a compare-and-swap, so a caller that
// loses a race gets vault.ErrInvalidTransition (logged, row untouched) or
// vault.ErrMediaNotFound when the row was deleted underneath it.
//
// Deletes cascade children-first and can be re-run after a partial failure.
// Collections left empty are never removed inline; the Reconciler re-checks
// them after a delay and sweeps periodically.
//
// Upload progress lives only in memory. Progress events are rate limited per
// media, but the final 100% and the uploaded event are always published.
package lifecycle
