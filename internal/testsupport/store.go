package testsupport

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"mediavault/internal/config"
	"mediavault/internal/vault"
)

// MustOpenStore opens a vault.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *vault.Store {
	t.Helper()

	store, err := vault.Open(cfg)
	if err != nil {
		t.Fatalf("vault.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewSpace inserts a private-server Space named name.
func NewSpace(t testing.TB, store *vault.Store, name string) *vault.Space {
	t.Helper()

	space := &vault.Space{Kind: vault.SpaceKindPrivateServer, Name: name, Host: "https://dav.example.test"}
	if err := store.CreateSpace(context.Background(), space); err != nil {
		t.Fatalf("store.CreateSpace: %v", err)
	}
	return space
}

// NewProject inserts a Project under spaceID.
func NewProject(t testing.TB, store *vault.Store, spaceID int64, description string) *vault.Project {
	t.Helper()

	project := &vault.Project{SpaceID: spaceID, Description: description}
	if err := store.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("store.CreateProject: %v", err)
	}
	return project
}

// NewCollection opens a fresh Collection in projectID.
func NewCollection(t testing.TB, store *vault.Store, projectID int64) *vault.Collection {
	t.Helper()

	collection, err := store.CreateCollection(context.Background(), projectID)
	if err != nil {
		t.Fatalf("store.CreateCollection: %v", err)
	}
	return collection
}

var mediaSeq atomic.Int64

// NewMedia inserts a Media row in collection with the given status. The
// encrypted path is synthetic and unique; no file is written.
func NewMedia(t testing.TB, store *vault.Store, collection *vault.Collection, status vault.Status) *vault.Media {
	t.Helper()

	seq := mediaSeq.Add(1)
	media := &vault.Media{
		ProjectID:        collection.ProjectID,
		CollectionID:     collection.ID,
		OriginalFilePath: fmt.Sprintf("/captures/item-%d-%d.jpg", collection.ID, seq),
		EncryptedPath:    fmt.Sprintf("/vault/item-%d-%d.jpg.enc", collection.ID, seq),
		MimeType:         "image/jpeg",
		Status:           status,
	}
	if err := store.InsertMedia(context.Background(), media); err != nil {
		t.Fatalf("store.InsertMedia: %v", err)
	}
	return media
}
