// Command mediavault is the command-line front end for the encrypted media
// vault.
//
// Every command except run works directly against the vault database and
// content directory; run starts the long-lived daemon that drives uploads and
// reclaims empty collections. Use --json on list and show commands for
// machine-readable output.
package main
