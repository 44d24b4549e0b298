// Package upload drives queued media to their Space's remote.
//
// A Driver polls the vault for Queued media in priority order, claims each
// one through the lifecycle engine (Queued → Uploading), streams the sealed
// payload through the Uploader registered for the Space kind, and reports
// progress and the final result back to the engine. Attempts are bounded by
// the configured upload timeout and guarded by a circuit breaker so a dead
// remote does not burn through the whole queue.
package upload
