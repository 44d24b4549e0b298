package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateCollection opens a new, empty Collection in a Project.
func (s *Store) CreateCollection(ctx context.Context, projectID int64) (*Collection, error) {
	now := time.Now().UTC()
	collection := &Collection{ProjectID: projectID, CreatedAt: now}
	err := s.queryRowWithRetry(ctx,
		`INSERT INTO collections (project_id, created_at)
         SELECT id, ? FROM projects WHERE id = ?
         RETURNING id`,
		[]any{formatTime(now), projectID},
		&collection.ID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("insert collection: %w", err)
	}
	return collection, nil
}

// GetCollection fetches a Collection by ID.
func (s *Store) GetCollection(ctx context.Context, id int64) (*Collection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id)
	collection, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return collection, nil
}

// OpenCollection returns the Project's newest Collection that is not yet
// closed and holds nothing past Local, creating one when none exists.
func (s *Store) OpenCollection(ctx context.Context, projectID int64) (*Collection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections c
         WHERE c.project_id = ? AND c.upload_date IS NULL
           AND NOT EXISTS (SELECT 1 FROM media m WHERE m.collection_id = c.id AND m.status NOT IN (?, ?))
         ORDER BY c.id DESC LIMIT 1`,
		projectID, int(StatusNew), int(StatusLocal),
	)
	collection, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s.CreateCollection(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("find open collection: %w", err)
	}
	return collection, nil
}

// ListCollections returns the non-empty Collections of a Project, newest first.
func (s *Store) ListCollections(ctx context.Context, projectID int64) ([]*Collection, error) {
	uploaded := statusArgs([]Status{StatusUploaded})
	args := append(uploaded, projectID)
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.project_id, c.created_at, c.upload_date, c.server_url,
                COUNT(m.id), SUM(CASE WHEN m.status IN (`+makePlaceholders(len(uploaded))+`) THEN 1 ELSE 0 END)
         FROM collections c JOIN media m ON m.collection_id = c.id
         WHERE c.project_id = ?
         GROUP BY c.id
         ORDER BY c.id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var collections []*Collection
	for rows.Next() {
		var total, done int
		collection, err := scanCollection(rows, &total, &done)
		if err != nil {
			return nil, err
		}
		collection.MediaCount = total
		collection.UploadedCount = done
		collections = append(collections, collection)
	}
	return collections, rows.Err()
}

// CollectionIDs returns every Collection ID of a Project, empty ones included.
func (s *Store) CollectionIDs(ctx context.Context, projectID int64) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT id FROM collections WHERE project_id = ? ORDER BY id`, projectID)
}

// EmptyCollectionIDs lists Collections that currently hold no Media.
func (s *Store) EmptyCollectionIDs(ctx context.Context) ([]int64, error) {
	return s.queryIDs(ctx,
		`SELECT c.id FROM collections c
         WHERE NOT EXISTS (SELECT 1 FROM media m WHERE m.collection_id = c.id)
         ORDER BY c.id`)
}

// DeleteCollectionIfEmpty removes the Collection only when no Media
// references it, in a single statement so a concurrent insert either lands
// first and keeps it alive or fails with ErrCollectionGone.
func (s *Store) DeleteCollectionIfEmpty(ctx context.Context, id int64) (bool, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM collections
         WHERE id = ? AND NOT EXISTS (SELECT 1 FROM media WHERE collection_id = ?)`,
		id, id,
	)
	if err != nil {
		return false, fmt.Errorf("delete empty collection %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteCollectionRow removes the Collection row. Fails with ErrHasChildren
// while Media remain. A missing row is not an error.
func (s *Store) DeleteCollectionRow(ctx context.Context, id int64) error {
	_, err := s.execWithRetry(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("delete collection %d: %w", id, ErrHasChildren)
	}
	if err != nil {
		return fmt.Errorf("delete collection %d: %w", id, err)
	}
	return nil
}

// CloseCollectionIfUploaded stamps upload_date when the Collection holds at
// least one Media and every Media is Uploaded. Reports whether it closed.
func (s *Store) CloseCollectionIfUploaded(ctx context.Context, id int64, at time.Time) (bool, error) {
	uploaded := statusArgs([]Status{StatusUploaded})
	args := []any{formatTime(at), id, id}
	args = append(args, uploaded...)
	args = append(args, id)
	res, err := s.execWithRetry(ctx,
		`UPDATE collections SET upload_date = ?
         WHERE id = ? AND upload_date IS NULL
           AND NOT EXISTS (SELECT 1 FROM media WHERE collection_id = ? AND status NOT IN (`+makePlaceholders(len(uploaded))+`))
           AND EXISTS (SELECT 1 FROM media WHERE collection_id = ?)`,
		args...,
	)
	if err != nil {
		return false, fmt.Errorf("close collection %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SetCollectionServerURL records the remote batch location.
func (s *Store) SetCollectionServerURL(ctx context.Context, id int64, url string) error {
	res, err := s.execWithRetry(ctx, `UPDATE collections SET server_url = ? WHERE id = ?`, nullableString(url), id)
	if err != nil {
		return fmt.Errorf("set server url: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("collection %d: %w", id, ErrNotFound)
	}
	return nil
}
