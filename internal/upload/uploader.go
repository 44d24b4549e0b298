package upload

import (
	"context"
	"fmt"

	"mediavault/internal/vault"
)

// Job is one upload attempt.
type Job struct {
	Media *vault.Media
	Space *vault.Space
}

// Receipt describes where the remote stored a payload.
type Receipt struct {
	CollectionURL string
}

// ProgressFunc receives upload percentages in 0..100.
type ProgressFunc func(percent int)

// Uploader sends sealed payloads to one kind of remote.
type Uploader interface {
	Upload(ctx context.Context, job Job, progress ProgressFunc) (Receipt, error)
}

// Registry maps Space kinds to Uploaders.
type Registry struct {
	byKind   map[vault.SpaceKind]Uploader
	fallback Uploader
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[vault.SpaceKind]Uploader)}
}

// Register serves kind with uploader.
func (r *Registry) Register(kind vault.SpaceKind, uploader Uploader) {
	r.byKind[kind] = uploader
}

// SetFallback serves every kind without a dedicated Uploader.
func (r *Registry) SetFallback(uploader Uploader) {
	r.fallback = uploader
}

// For returns the Uploader for kind.
func (r *Registry) For(kind vault.SpaceKind) (Uploader, error) {
	if uploader, ok := r.byKind[kind]; ok {
		return uploader, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoUploader, kind)
}

// Empty reports whether nothing is registered.
func (r *Registry) Empty() bool {
	return len(r.byKind) == 0 && r.fallback == nil
}
