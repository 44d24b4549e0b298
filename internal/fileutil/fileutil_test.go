package fileutil

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "nested", "dst.bin")

	content := bytes.Repeat([]byte("sealed"), copyChunk/3)
	if err := os.WriteFile(src, content, 0o600); err != nil {
		t.Fatal(err)
	}

	var calls int
	var last int64
	err := CopyFileVerified(context.Background(), src, dst, 0o640, func(written, total int64) {
		calls++
		if written < last || total != int64(len(content)) {
			t.Fatalf("bad progress %d/%d after %d", written, total, last)
		}
		last = written
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls < 2 || last != int64(len(content)) {
		t.Fatalf("expected chunked progress ending at %d, got %d calls ending at %d", len(content), calls, last)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Fatal("content mismatch")
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Fatalf("mode = %v, want 0640", info.Mode().Perm())
	}
}

func TestCopyFileVerifiedCancelled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	if err := os.WriteFile(src, []byte("data"), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := CopyFileVerified(ctx, src, dst, 0o600, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the source left behind, got %d entries", len(entries))
	}
}

func TestCopyFileVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := CopyFileVerified(context.Background(), filepath.Join(dir, "missing"), filepath.Join(dir, "dst"), 0o600, nil)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
