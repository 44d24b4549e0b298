// Package notify carries media change and delete events from the lifecycle
// engine to any number of in-process observers.
//
// Bus wraps watermill's gochannel pub/sub: publishing never waits for
// subscribers, late subscribers see nothing historical, and delivery order is
// not guaranteed. Observers should do a full read when they subscribe and
// apply events idempotently; Tracker is the reference implementation.
package notify
