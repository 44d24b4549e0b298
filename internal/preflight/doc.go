// Package preflight provides readiness checks for the filesystem paths,
// key material, database and push endpoint the vault depends on.
//
// The daemon runs RunAll once at startup and logs every failed check; the
// CLI "mediavault status" command renders the same results as a table.
// Optional features (mirror uploads, ntfy) are only checked when configured.
package preflight
