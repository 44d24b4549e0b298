package cipher_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"mediavault/internal/cipher"
	"mediavault/internal/logging"
)

func newService(t *testing.T, dir string) *cipher.Service {
	t.Helper()
	return cipher.New(cipher.NewFileKeyStore(dir, logging.NewNop()), cipher.WithDeviceID("test-device"))
}

func TestRoundTrip(t *testing.T) {
	svc := newService(t, t.TempDir())
	ctx := context.Background()

	sizes := []int{0, 1, 15, 16, 17, 31, 32, 33, 1000, 64 * 1024}
	for _, size := range sizes {
		plaintext := make([]byte, size)
		if _, err := rand.Read(plaintext); err != nil {
			t.Fatalf("rand: %v", err)
		}
		sealed, err := svc.Encrypt(ctx, plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%d bytes) failed: %v", size, err)
		}
		if len(sealed) < cipher.IVSize+16 || (len(sealed)-cipher.IVSize)%16 != 0 {
			t.Fatalf("unexpected sealed length %d for %d bytes", len(sealed), size)
		}
		opened, err := svc.Decrypt(ctx, sealed)
		if err != nil {
			t.Fatalf("Decrypt(%d bytes) failed: %v", size, err)
		}
		if !bytes.Equal(opened, plaintext) {
			t.Fatalf("round trip mismatch for %d bytes", size)
		}
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	svc := newService(t, t.TempDir())
	ctx := context.Background()
	plaintext := []byte("the same photo twice")

	first, err := svc.Encrypt(ctx, plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	second, err := svc.Encrypt(ctx, plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if bytes.Equal(first[:cipher.IVSize], second[:cipher.IVSize]) {
		t.Fatal("expected distinct IVs")
	}
	if bytes.Equal(first, second) {
		t.Fatal("expected distinct sealed blobs")
	}
}

func TestDecryptDetectsTampering(t *testing.T) {
	svc := newService(t, t.TempDir())
	ctx := context.Background()
	sealed, err := svc.Encrypt(ctx, []byte("field recording, 3 minutes"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	for i := range sealed {
		tampered := append([]byte(nil), sealed...)
		tampered[i] ^= 0x01
		opened, err := svc.Decrypt(ctx, tampered)
		if !errors.Is(err, cipher.ErrCipherFailure) {
			t.Fatalf("flip at byte %d: expected ErrCipherFailure, got %v (plaintext %q)", i, err, opened)
		}
	}
}

func TestDecryptRejectsShortAndTruncatedInput(t *testing.T) {
	svc := newService(t, t.TempDir())
	ctx := context.Background()

	for _, n := range []int{0, 1, 16} {
		if _, err := svc.Decrypt(ctx, make([]byte, n)); !errors.Is(err, cipher.ErrMalformedBlob) {
			t.Fatalf("len %d: expected ErrMalformedBlob, got %v", n, err)
		}
	}

	sealed, err := svc.Encrypt(ctx, []byte("truncate me please"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	for _, cut := range []int{1, 16, len(sealed) - cipher.IVSize - 1} {
		if _, err := svc.Decrypt(ctx, sealed[:len(sealed)-cut]); !errors.Is(err, cipher.ErrCipherFailure) {
			t.Fatalf("cut %d: expected ErrCipherFailure, got %v", cut, err)
		}
	}
}

func TestKeyPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	sealed, err := newService(t, dir).Encrypt(ctx, []byte("kept"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	opened, err := newService(t, dir).Decrypt(ctx, sealed)
	if err != nil {
		t.Fatalf("Decrypt with reloaded key failed: %v", err)
	}
	if string(opened) != "kept" {
		t.Fatalf("unexpected plaintext %q", opened)
	}

	info, err := os.Stat(filepath.Join(dir, "vault.key"))
	if err != nil {
		t.Fatalf("stat key: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected key mode 0600, got %v", info.Mode().Perm())
	}
}

func TestKeyIsBoundToDevice(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	store := cipher.NewFileKeyStore(dir, logging.NewNop())

	sealed, err := cipher.New(store, cipher.WithDeviceID("device-a")).Encrypt(ctx, []byte("bound"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if _, err := cipher.New(store, cipher.WithDeviceID("device-b")).Decrypt(ctx, sealed); !errors.Is(err, cipher.ErrCipherFailure) {
		t.Fatalf("expected ErrCipherFailure on another device, got %v", err)
	}
}

func TestConcurrentKeyCreationAgrees(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	const workers = 8
	keys := make([][]byte, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i], errs[i] = cipher.NewFileKeyStore(dir, logging.NewNop()).LoadOrCreate(ctx)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if !bytes.Equal(keys[i], keys[0]) {
			t.Fatalf("worker %d saw a different key", i)
		}
	}
}

func TestCorruptKeyFileIsUnavailable(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "vault.key"), []byte("short"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	if _, err := newService(t, dir).Encrypt(context.Background(), []byte("x")); !errors.Is(err, cipher.ErrKeyUnavailable) {
		t.Fatalf("expected ErrKeyUnavailable, got %v", err)
	}
}

func TestConcurrentEncryptDecrypt(t *testing.T) {
	svc := newService(t, t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			plaintext := bytes.Repeat([]byte{byte(i)}, 100+i)
			sealed, err := svc.Encrypt(ctx, plaintext)
			if err != nil {
				t.Errorf("Encrypt: %v", err)
				return
			}
			opened, err := svc.Decrypt(ctx, sealed)
			if err != nil || !bytes.Equal(opened, plaintext) {
				t.Errorf("Decrypt mismatch: %v", err)
			}
		}(i)
	}
	wg.Wait()
}
