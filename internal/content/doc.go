// Package content stores media payloads sealed on disk and hands out
// short-lived plaintext copies from a bounded cache.
//
// Sealed payloads are named <logical name>.enc. Plaintext never lands in the
// content directory: Ingest seals straight from the caller's file, StoreNew
// seals in place and deletes the original, and Materialize decrypts into the
// cache directory only.
package content
