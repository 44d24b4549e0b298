package cipher

import "errors"

var (
	// ErrKeyUnavailable indicates the device key could not be loaded or created.
	ErrKeyUnavailable = errors.New("cipher: device key unavailable")
	// ErrCipherFailure covers every encrypt/decrypt failure, including wrong
	// key, corrupted or truncated ciphertext, bad padding, and failed integrity checks.
	ErrCipherFailure = errors.New("cipher: operation failed")
	// ErrMalformedBlob is returned when a sealed blob is too short to hold an IV and one byte.
	ErrMalformedBlob = errors.New("cipher: malformed sealed blob")
)
