package upload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"mediavault/internal/fileutil"
	"mediavault/internal/textutil"
)

// MirrorUploader copies sealed payloads into a local directory tree laid out
// as <root>/<space>/collection-<id>/<file>. Payloads stay encrypted.
type MirrorUploader struct {
	root string
}

// NewMirrorUploader mirrors into root.
func NewMirrorUploader(root string) *MirrorUploader {
	return &MirrorUploader{root: root}
}

// Upload implements Uploader.
func (m *MirrorUploader) Upload(ctx context.Context, job Job, progress ProgressFunc) (Receipt, error) {
	if job.Media == nil || job.Media.EncryptedPath == "" {
		return Receipt{}, errors.New("mirror: media has no sealed payload")
	}
	spaceDir := "default"
	if job.Space != nil {
		spaceDir = textutil.Slug(job.Space.Name)
	}
	collectionDir := filepath.Join(m.root, spaceDir, fmt.Sprintf("collection-%d", job.Media.CollectionID))
	target := filepath.Join(collectionDir, textutil.PathSegment(filepath.Base(job.Media.EncryptedPath)))

	last := -1
	err := fileutil.CopyFileVerified(ctx, job.Media.EncryptedPath, target, 0o600, func(written, total int64) {
		if progress == nil || total <= 0 {
			return
		}
		pct := int(written * 100 / total)
		if pct != last {
			last = pct
			progress(pct)
		}
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Receipt{}, ctxErr
		}
		return Receipt{}, &RemoteError{Op: "mirror copy", Cause: err}
	}
	if progress != nil && last != 100 {
		progress(100)
	}
	return Receipt{CollectionURL: "file://" + collectionDir}, nil
}
