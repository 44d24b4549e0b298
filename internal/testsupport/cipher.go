package testsupport

import (
	"testing"

	"mediavault/internal/cipher"
	"mediavault/internal/config"
	"mediavault/internal/content"
	"mediavault/internal/logging"
)

// NewCipher returns a cipher service keyed under the config's key dir with a
// fixed device identity.
func NewCipher(t testing.TB, cfg *config.Config) *cipher.Service {
	t.Helper()
	return cipher.New(cipher.NewFileKeyStore(cfg.KeyDir(), logging.NewNop()), cipher.WithDeviceID("test-device"))
}

// NewContentStore wires a content store over NewCipher.
func NewContentStore(t testing.TB, cfg *config.Config) *content.Store {
	t.Helper()
	return content.NewStore(cfg, NewCipher(t, cfg), logging.NewNop())
}
