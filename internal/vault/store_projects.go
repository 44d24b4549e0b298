package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CreateProject inserts a Project under its Space. The Space's license, when
// set, overrides the caller's license.
func (s *Store) CreateProject(ctx context.Context, project *Project) error {
	if project == nil {
		return errors.New("project is nil")
	}
	if strings.TrimSpace(project.Description) == "" {
		return errors.New("project description is required")
	}
	now := time.Now().UTC()
	var license sql.NullString
	err := s.queryRowWithRetry(ctx,
		`INSERT INTO projects (space_id, description, license, archived, created_at)
         SELECT id, ?, COALESCE(NULLIF(license, ''), ?), ?, ? FROM spaces WHERE id = ?
         RETURNING id, license`,
		[]any{project.Description, nullableString(project.License), boolToInt(project.Archived), formatTime(now), project.SpaceID},
		&project.ID, &license,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("space %d: %w", project.SpaceID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	project.License = license.String
	project.CreatedAt = now
	return nil
}

// GetProject fetches a Project by ID.
func (s *Store) GetProject(ctx context.Context, id int64) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// ListProjects returns the archived or non-archived Projects of a Space.
func (s *Store) ListProjects(ctx context.Context, spaceID int64, archived bool) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE space_id = ? AND archived = ? ORDER BY id`,
		spaceID, boolToInt(archived),
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	return collectProjects(rows)
}

// ProjectIDs returns every Project ID of a Space regardless of archive state.
func (s *Store) ProjectIDs(ctx context.Context, spaceID int64) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT id FROM projects WHERE space_id = ? ORDER BY id`, spaceID)
}

// SetProjectArchived toggles the archived flag.
func (s *Store) SetProjectArchived(ctx context.Context, id int64, archived bool) error {
	res, err := s.execWithRetry(ctx, `UPDATE projects SET archived = ? WHERE id = ?`, boolToInt(archived), id)
	if err != nil {
		return fmt.Errorf("archive project: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	return nil
}

// ProjectSpace resolves the Space owning a Project.
func (s *Store) ProjectSpace(ctx context.Context, projectID int64) (*Space, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.kind, s.name, s.username, s.password, s.host, s.license, s.created_at
         FROM spaces s JOIN projects p ON p.space_id = s.id WHERE p.id = ?`,
		projectID,
	)
	space, err := scanSpace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("space for project %d: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve project space: %w", err)
	}
	return space, nil
}

// DeleteProjectRow removes the Project row. Fails with ErrHasChildren while
// Collections or Media remain. A missing row is not an error.
func (s *Store) DeleteProjectRow(ctx context.Context, id int64) error {
	_, err := s.execWithRetry(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("delete project %d: %w", id, ErrHasChildren)
	}
	if err != nil {
		return fmt.Errorf("delete project %d: %w", id, err)
	}
	return nil
}

func collectProjects(rows *sql.Rows) ([]*Project, error) {
	var projects []*Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
