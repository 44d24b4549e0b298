// Package notifications delivers vault events as ntfy push messages.
//
// NewService returns an ntfy-backed Service when a topic is configured and a
// no-op otherwise. The uploads and errors switches in the [notifications]
// section suppress whole event families without callers having to check them.
package notifications
