// Package daemon runs the long-lived mediavault process.
//
// A Daemon takes a flock-based single-instance lock, returns uploads left
// in flight by a previous crash to the queue, logs preflight failures, and
// then serves a suture supervision tree holding the upload driver, the
// collection emptiness reconciler, the gauge refresher, and (when
// metrics.bind is set) the Prometheus endpoint. Individual services restart
// under suture's backoff policy; Run returns once the context is cancelled
// and every service has stopped.
//
// IsRunning tries the same lock so CLI commands can report daemon state
// without talking to the process.
package daemon
