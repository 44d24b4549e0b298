// Package vault persists the Space → Project → Collection → Media graph in
// SQLite.
//
// The Store owns the database connection, the embedded schema, and every
// query the lifecycle engine and CLI need. Media status writes are
// compare-and-swap updates keyed on the expected prior status; a lost race
// surfaces as ErrInvalidTransition (row unchanged) or ErrMediaNotFound (row
// deleted underneath the caller).
//
// Foreign keys use the default NO ACTION behaviour, so a parent row can only
// be removed once its children are gone. The lifecycle package performs the
// cascade children-first; a cascade interrupted halfway is finished by running
// it again.
//
// Schema changes bump schemaVersion in schema.go.
package vault
