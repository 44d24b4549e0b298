// Package logging assembles structured slog loggers and formatting helpers used
// across mediavault.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so engine and driver code can tag
// log lines with media and collection identifiers. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
package logging
