// Package metrics exposes Prometheus instrumentation for the vault: status
// transitions, upload attempts, imports, bus events, reconciler work, and the
// materialization cache.
//
// Collectors are registered on the default registry at init through promauto,
// so the Record* helpers are safe to call from any package without wiring.
// The daemon serves them through Handler when metrics.bind is set.
package metrics
