package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"mediavault/internal/content"
	"mediavault/internal/logging"
	"mediavault/internal/metrics"
	"mediavault/internal/notifications"
	"mediavault/internal/notify"
	"mediavault/internal/vault"
)

// ImportFailure records one file that could not be imported.
type ImportFailure struct {
	Path string
	Err  error
}

// ImportResult summarizes an Import or Capture call.
type ImportResult struct {
	Collection *vault.Collection
	Imported   []*vault.Media
	Failed     []ImportFailure
}

type sealFunc func(ctx context.Context, path string) (content.EncryptedRef, content.Info, error)

// Import seals external files into the Project's open Collection. Sources
// are left untouched. Each file that fails leaves nothing behind.
func (e *Engine) Import(ctx context.Context, projectID int64, paths ...string) (*ImportResult, error) {
	return e.importFiles(ctx, projectID, paths, e.content.Ingest)
}

// Capture seals files that were written inside the content directory in
// place, removing the plaintext. Already sealed files are adopted as-is.
func (e *Engine) Capture(ctx context.Context, projectID int64, paths ...string) (*ImportResult, error) {
	return e.importFiles(ctx, projectID, paths, e.sealInPlace)
}

func (e *Engine) sealInPlace(ctx context.Context, path string) (content.EncryptedRef, content.Info, error) {
	if content.IsSealed(path) {
		ref, err := e.content.StoreNew(ctx, path)
		if err != nil {
			return "", content.Info{}, err
		}
		info := content.Info{Name: content.LogicalName(ref)}
		if stat, err := os.Stat(path); err == nil {
			info.ContentLength = stat.Size()
		}
		return ref, info, nil
	}
	info, err := e.content.Describe(ctx, path)
	if err != nil {
		return "", info, err
	}
	ref, err := e.content.StoreNew(ctx, path)
	return ref, info, err
}

func (e *Engine) importFiles(ctx context.Context, projectID int64, paths []string, seal sealFunc) (*ImportResult, error) {
	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	collection, err := e.store.OpenCollection(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Collection: collection}
	for _, path := range paths {
		media, err := e.importOne(ctx, project, result, path, seal)
		metrics.RecordImport(err)
		if err != nil {
			logging.WarnWithContext(ctx, e.logger, "import failed", "import_failed",
				logging.String("source_file", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the file exists and is readable"),
				logging.String(logging.FieldImpact, "file not added to the vault"),
			)
			result.Failed = append(result.Failed, ImportFailure{Path: path, Err: err})
			continue
		}
		result.Imported = append(result.Imported, media)
	}
	if len(result.Imported) == 0 {
		e.reconciler.Schedule(result.Collection.ID)
	}

	if len(paths) > 0 {
		e.notify(ctx, notifications.EventImportCompleted, notifications.Payload{
			"project":  project.Description,
			"imported": len(result.Imported),
			"failed":   len(result.Failed),
		})
	}
	if len(result.Failed) > 0 {
		errs := make([]error, 0, len(result.Failed))
		for _, failure := range result.Failed {
			errs = append(errs, fmt.Errorf("%s: %w", failure.Path, failure.Err))
		}
		return result, fmt.Errorf("import: %d of %d files failed: %w", len(result.Failed), len(paths), errors.Join(errs...))
	}
	return result, nil
}

func (e *Engine) importOne(ctx context.Context, project *vault.Project, result *ImportResult, path string, seal sealFunc) (*vault.Media, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	stat, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", content.ErrSourceMissing, abs)
		}
		return nil, fmt.Errorf("%w: %v", content.ErrIOFailure, err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("%s is a directory", abs)
	}

	media := &vault.Media{
		ProjectID:        project.ID,
		OriginalFilePath: strings.TrimSuffix(abs, content.SealedSuffix),
		Title:            TitleFromName(abs),
		License:          project.License,
		CreateDate:       stat.ModTime(),
		Status:           vault.StatusNew,
	}
	if err := e.insertIntoOpenCollection(ctx, project, result, media); err != nil {
		return nil, err
	}

	ref, info, err := seal(ctx, abs)
	if err != nil {
		e.discardNew(ctx, media)
		return nil, err
	}
	payload := vault.SealedPayload{
		EncryptedPath: string(ref),
		MimeType:      info.MimeType,
		ContentLength: info.ContentLength,
		MediaHash:     info.Hash,
	}
	if err := e.store.MarkLocal(ctx, media.ID, payload); err != nil {
		// The sealed file belongs to another Media when the path is taken.
		if !errors.Is(err, vault.ErrPayloadInUse) {
			e.content.Delete(ctx, ref)
		}
		e.discardNew(ctx, media)
		return nil, err
	}
	metrics.RecordTransition(vault.StatusNew.String(), vault.StatusLocal.String())
	media.Status = vault.StatusLocal
	media.EncryptedPath = payload.EncryptedPath
	media.MimeType = payload.MimeType
	media.ContentLength = payload.ContentLength
	media.MediaHash = payload.MediaHash

	e.logger.InfoContext(ctx, "media imported",
		logging.MediaID(media.ID),
		logging.CollectionID(media.CollectionID),
		logging.String("sealed_file", media.EncryptedPath),
	)
	e.publish(ctx, notify.Change(media.CollectionID, media.ID, 0, false))
	return media, nil
}

// insertIntoOpenCollection inserts media into result.Collection, opening a
// fresh Collection when the reconciler removed the current one.
func (e *Engine) insertIntoOpenCollection(ctx context.Context, project *vault.Project, result *ImportResult, media *vault.Media) error {
	const attempts = 3
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		media.CollectionID = result.Collection.ID
		err = e.store.InsertMedia(ctx, media)
		if !errors.Is(err, vault.ErrCollectionGone) {
			return err
		}
		e.logger.DebugContext(ctx, "collection reclaimed during import; opening another",
			logging.CollectionID(result.Collection.ID),
		)
		collection, openErr := e.store.OpenCollection(ctx, project.ID)
		if openErr != nil {
			return openErr
		}
		result.Collection = collection
	}
	return err
}

// discardNew removes a New row whose payload never made it to disk and
// schedules an emptiness check for its Collection.
func (e *Engine) discardNew(ctx context.Context, media *vault.Media) {
	if _, err := e.store.DeleteMediaRow(ctx, media.ID); err != nil {
		logging.ErrorWithContext(ctx, e.logger, "failed to remove unsealed media row", "import_cleanup_failed",
			logging.MediaID(media.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the media with 'mediavault media remove'"),
		)
		return
	}
	e.reconciler.Schedule(media.CollectionID)
}

var titleCaser = cases.Title(language.Und, cases.NoLower)

// TitleFromName derives a display title from a file name.
func TitleFromName(path string) string {
	name := filepath.Base(strings.TrimSuffix(path, content.SealedSuffix))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(name)
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	return titleCaser.String(name)
}

func displayName(media *vault.Media) string {
	if media.Title != "" {
		return media.Title
	}
	return filepath.Base(media.OriginalFilePath)
}
