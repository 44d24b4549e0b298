package content_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediavault/internal/content"
	"mediavault/internal/testsupport"
)

func TestStoreNewSealsInPlaceAndRemovesPlaintext(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.NewContentStore(t, cfg)
	ctx := context.Background()

	plain := testsupport.WriteFile(t, cfg.Paths.ContentDir, "clip.mp4", []byte("moving pictures"))
	ref, err := store.StoreNew(ctx, plain)
	if err != nil {
		t.Fatalf("StoreNew failed: %v", err)
	}
	if string(ref) != plain+".enc" {
		t.Fatalf("unexpected ref %q", ref)
	}
	if _, err := os.Stat(plain); !os.IsNotExist(err) {
		t.Fatalf("expected plaintext removed, stat err=%v", err)
	}
	sealed, err := os.ReadFile(string(ref))
	if err != nil {
		t.Fatalf("read sealed: %v", err)
	}
	if bytes.Contains(sealed, []byte("moving pictures")) {
		t.Fatal("sealed file contains plaintext")
	}
}

func TestStoreNewIsIdempotentForSealedInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.NewContentStore(t, cfg)
	ctx := context.Background()

	plain := testsupport.WriteFile(t, cfg.Paths.ContentDir, "note.txt", []byte("hello"))
	ref, err := store.StoreNew(ctx, plain)
	if err != nil {
		t.Fatalf("StoreNew failed: %v", err)
	}
	before, err := os.ReadFile(string(ref))
	if err != nil {
		t.Fatalf("read sealed: %v", err)
	}

	again, err := store.StoreNew(ctx, string(ref))
	if err != nil {
		t.Fatalf("second StoreNew failed: %v", err)
	}
	if again != ref {
		t.Fatalf("expected same ref, got %q want %q", again, ref)
	}
	after, err := os.ReadFile(string(ref))
	if err != nil {
		t.Fatalf("read sealed: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("sealed bytes changed on repeated StoreNew")
	}
	if _, err := os.Stat(string(ref) + ".enc"); !os.IsNotExist(err) {
		t.Fatal("expected no double-sealed file")
	}
}

func TestStoreNewNeverReplacesAnExistingSealedFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.NewContentStore(t, cfg)
	ctx := context.Background()

	plain := testsupport.WriteFile(t, cfg.Paths.ContentDir, "memo.txt", []byte("first"))
	ref, err := store.StoreNew(ctx, plain)
	if err != nil {
		t.Fatalf("StoreNew failed: %v", err)
	}

	testsupport.WriteFile(t, cfg.Paths.ContentDir, "memo.txt", []byte("second-different"))
	_, err = store.StoreNew(ctx, plain)
	if !errors.Is(err, content.ErrIOFailure) || !errors.Is(err, content.ErrTargetExists) {
		t.Fatalf("expected ErrIOFailure/ErrTargetExists, got %v", err)
	}
	if data, err := os.ReadFile(plain); err != nil || string(data) != "second-different" {
		t.Fatalf("second plaintext must stay in place, got %q err=%v", data, err)
	}

	handle, err := store.Materialize(ctx, ref)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	data, err := os.ReadFile(handle.Path)
	if err != nil {
		t.Fatalf("read materialized: %v", err)
	}
	if string(data) != "first" {
		t.Fatalf("original payload was replaced: %q", data)
	}

	entries, err := os.ReadDir(cfg.Paths.ContentDir)
	if err != nil {
		t.Fatalf("read content dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestStoreNewMissingSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.NewContentStore(t, cfg)

	_, err := store.StoreNew(context.Background(), filepath.Join(cfg.Paths.ContentDir, "gone.jpg"))
	if !errors.Is(err, content.ErrSourceMissing) {
		t.Fatalf("expected ErrSourceMissing, got %v", err)
	}
	_, err = store.StoreNew(context.Background(), filepath.Join(cfg.Paths.ContentDir, "gone.jpg.enc"))
	if !errors.Is(err, content.ErrSourceMissing) {
		t.Fatalf("expected ErrSourceMissing for sealed path, got %v", err)
	}
}

func TestIngestLeavesSourceAndWritesNoPlaintext(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.NewContentStore(t, cfg)
	ctx := context.Background()

	srcDir := filepath.Join(testsupport.BaseDir(cfg), "camera")
	src := testsupport.WriteFile(t, srcDir, "IMG_0001.jpg", []byte("\xff\xd8\xff\xe0 jpeg-ish"))

	ref, info, err := store.Ingest(ctx, src)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("expected source untouched: %v", err)
	}
	if !strings.HasPrefix(string(ref), cfg.Paths.ContentDir) || !strings.HasSuffix(string(ref), "IMG_0001.jpg.enc") {
		t.Fatalf("unexpected ref %q", ref)
	}
	if info.ContentLength != int64(len("\xff\xd8\xff\xe0 jpeg-ish")) {
		t.Fatalf("unexpected content length %d", info.ContentLength)
	}
	if info.MimeType != "image/jpeg" {
		t.Fatalf("unexpected mime type %q", info.MimeType)
	}
	if len(info.Hash) != 64 {
		t.Fatalf("expected hex sha256, got %q", info.Hash)
	}
	for _, file := range testsupport.ListFiles(t, cfg.Paths.ContentDir) {
		if !content.IsSealed(file) {
			t.Fatalf("plaintext residue in content dir: %s", file)
		}
	}
}

func TestMaterializeDecryptsIntoCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.NewContentStore(t, cfg)
	ctx := context.Background()

	src := testsupport.WriteFile(t, filepath.Join(testsupport.BaseDir(cfg), "src"), "voice.m4a", []byte("interview audio"))
	ref, _, err := store.Ingest(ctx, src)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	handle, err := store.Materialize(ctx, ref)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if filepath.Dir(handle.Path) != cfg.Paths.CacheDir {
		t.Fatalf("expected handle in cache dir, got %q", handle.Path)
	}
	data, err := os.ReadFile(handle.Path)
	if err != nil {
		t.Fatalf("read handle: %v", err)
	}
	if string(data) != "interview audio" {
		t.Fatalf("unexpected plaintext %q", data)
	}

	if err := os.Remove(handle.Path); err != nil {
		t.Fatalf("evict: %v", err)
	}
	again, err := store.Materialize(ctx, ref)
	if err != nil {
		t.Fatalf("Materialize after eviction failed: %v", err)
	}
	if again.Path != handle.Path {
		t.Fatalf("expected stable cache path, got %q want %q", again.Path, handle.Path)
	}
}

func TestMaterializeReportsDecryptionFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.NewContentStore(t, cfg)
	ctx := context.Background()

	bogus := testsupport.WriteFile(t, cfg.Paths.ContentDir, "bogus.bin.enc", bytes.Repeat([]byte{7}, 64))
	if _, err := store.Materialize(ctx, content.EncryptedRef(bogus)); !errors.Is(err, content.ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
	if _, err := store.Materialize(ctx, content.EncryptedRef(bogus+".missing.enc")); !errors.Is(err, content.ErrSourceMissing) {
		t.Fatalf("expected ErrSourceMissing, got %v", err)
	}
	if files := testsupport.ListFiles(t, cfg.Paths.CacheDir); len(files) != 0 {
		t.Fatalf("expected no cache files after failures, got %v", files)
	}
}

func TestDeleteRemovesSealedFileAndToleratesMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.NewContentStore(t, cfg)
	ctx := context.Background()

	src := testsupport.WriteFile(t, filepath.Join(testsupport.BaseDir(cfg), "src"), "a.png", []byte("png"))
	ref, _, err := store.Ingest(ctx, src)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if _, err := store.Materialize(ctx, ref); err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}

	store.Delete(ctx, ref)
	if _, err := os.Stat(string(ref)); !os.IsNotExist(err) {
		t.Fatalf("expected sealed file removed, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Dir(string(ref))); !os.IsNotExist(err) {
		t.Fatalf("expected per-import dir removed, stat err=%v", err)
	}
	if files := testsupport.ListFiles(t, cfg.Paths.CacheDir); len(files) != 0 {
		t.Fatalf("expected cached plaintext removed, got %v", files)
	}

	store.Delete(ctx, ref)
	if _, err := os.Stat(cfg.Paths.ContentDir); err != nil {
		t.Fatalf("content root must survive deletes: %v", err)
	}
}

func TestDescribeReportsPlaintextInfo(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.NewContentStore(t, cfg)

	path := testsupport.WriteFile(t, cfg.Paths.ContentDir, "memo.txt", []byte("abc"))
	info, err := store.Describe(context.Background(), path)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if info.Name != "memo.txt" || info.ContentLength != 3 {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.Hash != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected hash %s", info.Hash)
	}
	if !strings.HasPrefix(info.MimeType, "text/plain") {
		t.Fatalf("unexpected mime %q", info.MimeType)
	}
}
