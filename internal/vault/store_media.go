package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertMedia adds a Media row to its Collection. The insert only succeeds
// when the Collection still exists and belongs to the Media's Project.
func (s *Store) InsertMedia(ctx context.Context, media *Media) error {
	if media == nil {
		return errors.New("media is nil")
	}
	if err := checkWritable(media.Status); err != nil {
		return err
	}
	if media.OriginalFilePath == "" {
		return errors.New("media original file path is required")
	}
	now := time.Now().UTC()
	if media.CreateDate.IsZero() {
		media.CreateDate = now
	}
	media.UpdateDate = now

	err := s.queryRowWithRetry(ctx,
		`INSERT INTO media (
            project_id, collection_id, original_file_path, encrypted_path, mime_type,
            create_date, update_date, content_length, title, description, author, location, tags, license,
            media_hash, status, status_message, priority, selected, flagged)
         SELECT project_id, id, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
         FROM collections WHERE id = ? AND project_id = ?
         RETURNING id`,
		[]any{
			media.OriginalFilePath,
			nullableString(media.EncryptedPath),
			nullableString(media.MimeType),
			formatTime(media.CreateDate),
			formatTime(media.UpdateDate),
			media.ContentLength,
			nullableString(media.Title),
			nullableString(media.Description),
			nullableString(media.Author),
			nullableString(media.Location),
			nullableString(media.Tags),
			nullableString(media.License),
			nullableString(media.MediaHash),
			int(media.Status),
			nullableString(media.StatusMessage),
			media.Priority,
			boolToInt(media.Selected),
			boolToInt(media.Flagged),
			media.CollectionID,
			media.ProjectID,
		},
		&media.ID,
	)
	if errors.Is(err, sql.ErrNoRows) || isForeignKeyViolation(err) {
		return s.explainRejectedInsert(ctx, media)
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("insert media: %w: %s", ErrPayloadInUse, media.EncryptedPath)
	}
	if err != nil {
		return fmt.Errorf("insert media: %w", err)
	}
	return nil
}

func (s *Store) explainRejectedInsert(ctx context.Context, media *Media) error {
	collection, err := s.GetCollection(ctx, media.CollectionID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("insert media into collection %d: %w", media.CollectionID, ErrCollectionGone)
	}
	if err != nil {
		return err
	}
	if collection.ProjectID != media.ProjectID {
		return fmt.Errorf("insert media: project %d, collection %d belongs to project %d: %w",
			media.ProjectID, collection.ID, collection.ProjectID, ErrConsistencyViolation)
	}
	return fmt.Errorf("insert media into collection %d: %w", media.CollectionID, ErrCollectionGone)
}

// GetMedia fetches a Media row by ID.
func (s *Store) GetMedia(ctx context.Context, id int64) (*Media, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	media, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("media %d: %w", id, ErrMediaNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return media, nil
}

// ListMedia returns every Media of a Collection in the requested order.
func (s *Store) ListMedia(ctx context.Context, collectionID int64, order MediaOrder) ([]*Media, error) {
	orderBy := "status, id"
	if order == OrderByPriority {
		orderBy = "priority DESC, id"
	}
	return s.queryMedia(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE collection_id = ? ORDER BY `+orderBy,
		collectionID,
	)
}

// ListProjectMedia returns every Media of a Project ordered by (status, id).
func (s *Store) ListProjectMedia(ctx context.Context, projectID int64) ([]*Media, error) {
	return s.queryMedia(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE project_id = ? ORDER BY status, id`,
		projectID,
	)
}

// ListMediaByStatus returns Media whose decoded status is one of statuses.
func (s *Store) ListMediaByStatus(ctx context.Context, statuses ...Status) ([]*Media, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := statusArgs(statuses)
	return s.queryMedia(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE status IN (`+makePlaceholders(len(args))+`) ORDER BY id`,
		args...,
	)
}

// UploadQueue returns Queued, Uploading and Error Media in upload order.
func (s *Store) UploadQueue(ctx context.Context) ([]*Media, error) {
	args := statusArgs(UploadQueueStatuses)
	return s.queryMedia(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE status IN (`+makePlaceholders(len(args))+`)
         ORDER BY priority DESC, id`,
		args...,
	)
}

// NextQueued returns up to limit Queued Media in upload order.
func (s *Store) NextQueued(ctx context.Context, limit int) ([]*Media, error) {
	if limit <= 0 {
		limit = 1
	}
	return s.queryMedia(ctx,
		`SELECT `+mediaColumns+` FROM media WHERE status = ? ORDER BY priority DESC, id LIMIT ?`,
		int(StatusQueued), limit,
	)
}

// DeleteMediaRow removes a Media row. Reports whether a row was removed.
func (s *Store) DeleteMediaRow(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM media WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete media %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateMetadata applies a metadata patch. Last write wins.
func (s *Store) UpdateMetadata(ctx context.Context, id int64, patch MetadataPatch) error {
	if patch.Empty() {
		return nil
	}
	sets := []string{}
	args := []any{}
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		sets = append(sets, column+" = ?")
		args = append(args, nullableString(*value))
	}
	add("title", patch.Title)
	add("description", patch.Description)
	add("author", patch.Author)
	add("location", patch.Location)
	add("tags", patch.Tags)
	add("license", patch.License)

	query := `UPDATE media SET update_date = ?`
	for _, set := range sets {
		query += ", " + set
	}
	query += ` WHERE id = ?`
	args = append([]any{nowString()}, args...)
	args = append(args, id)

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("media %d: %w", id, ErrMediaNotFound)
	}
	return nil
}

// SetSelected sets the selection flag on the given Media.
func (s *Store) SetSelected(ctx context.Context, selected bool, ids ...int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := append([]any{boolToInt(selected)}, idArgs(ids)...)
	res, err := s.execWithRetry(ctx,
		`UPDATE media SET selected = ? WHERE id IN (`+makePlaceholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("set selected: %w", err)
	}
	return res.RowsAffected()
}

// ClearSelection unselects every Media.
func (s *Store) ClearSelection(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `UPDATE media SET selected = 0 WHERE selected != 0`)
	if err != nil {
		return 0, fmt.Errorf("clear selection: %w", err)
	}
	return res.RowsAffected()
}

// SelectedMedia returns the currently selected Media.
func (s *Store) SelectedMedia(ctx context.Context) ([]*Media, error) {
	return s.queryMedia(ctx, `SELECT `+mediaColumns+` FROM media WHERE selected != 0 ORDER BY id`)
}

// SetFlagged sets the flag marker on a Media.
func (s *Store) SetFlagged(ctx context.Context, id int64, flagged bool) error {
	res, err := s.execWithRetry(ctx, `UPDATE media SET flagged = ? WHERE id = ?`, boolToInt(flagged), id)
	if err != nil {
		return fmt.Errorf("set flagged: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("media %d: %w", id, ErrMediaNotFound)
	}
	return nil
}

func (s *Store) queryMedia(ctx context.Context, query string, args ...any) ([]*Media, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query media: %w", err)
	}
	defer rows.Close()

	var items []*Media
	for rows.Next() {
		media, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, media)
	}
	return items, rows.Err()
}
