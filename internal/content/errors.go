package content

import "errors"

var (
	// ErrSourceMissing indicates the plaintext or sealed input does not exist.
	ErrSourceMissing = errors.New("content: source missing")
	// ErrEncryptionFailed wraps cipher failures while sealing.
	ErrEncryptionFailed = errors.New("content: encryption failed")
	// ErrDecryptionFailed wraps cipher failures while opening a sealed file.
	ErrDecryptionFailed = errors.New("content: decryption failed")
	// ErrIOFailure covers filesystem errors other than a missing source.
	ErrIOFailure = errors.New("content: i/o failure")
	// ErrTargetExists indicates a sealed file already occupies the target name.
	ErrTargetExists = errors.New("content: sealed target already exists")
)
