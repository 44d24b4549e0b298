// Package cipher owns the device-bound AES-256 key and turns byte blobs into
// sealed blobs and back.
//
// A sealed blob is the 16-byte IV followed by AES-256-CBC ciphertext with
// PKCS7 padding. The plaintext is suffixed with an HMAC-SHA256 tag before
// encryption, so any modified byte makes Decrypt fail with ErrCipherFailure
// rather than yielding altered plaintext.
package cipher
