package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const currentSpaceKey = "current_space_id"

// CreateSpace inserts a Space and fills in its ID and CreatedAt.
func (s *Store) CreateSpace(ctx context.Context, space *Space) error {
	if space == nil {
		return errors.New("space is nil")
	}
	if _, err := ParseSpaceKind(string(space.Kind)); err != nil {
		return err
	}
	if strings.TrimSpace(space.Name) == "" {
		return errors.New("space name is required")
	}
	now := time.Now().UTC()
	res, err := s.execWithRetry(ctx,
		`INSERT INTO spaces (kind, name, username, password, host, license, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(space.Kind),
		space.Name,
		nullableString(space.Username),
		nullableString(space.Password),
		nullableString(space.Host),
		nullableString(space.License),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert space: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("space id: %w", err)
	}
	space.ID = id
	space.CreatedAt = now
	return nil
}

// GetSpace fetches a Space by ID.
func (s *Store) GetSpace(ctx context.Context, id int64) (*Space, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM spaces WHERE id = ?`, id)
	space, err := scanSpace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("space %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get space: %w", err)
	}
	return space, nil
}

// ListSpaces returns every Space in creation order.
func (s *Store) ListSpaces(ctx context.Context) ([]*Space, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+spaceColumns+` FROM spaces ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	defer rows.Close()

	var spaces []*Space
	for rows.Next() {
		space, err := scanSpace(rows)
		if err != nil {
			return nil, err
		}
		spaces = append(spaces, space)
	}
	return spaces, rows.Err()
}

// DeleteSpaceRow removes the Space row and clears the current selection when
// it pointed at this Space. Fails with ErrHasChildren while Projects remain.
// A missing row is not an error.
func (s *Store) DeleteSpaceRow(ctx context.Context, id int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM settings WHERE key = ? AND value = ?`,
			currentSpaceKey, strconv.FormatInt(id, 10),
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM spaces WHERE id = ?`, id)
		return err
	})
	if isForeignKeyViolation(err) {
		return fmt.Errorf("delete space %d: %w", id, ErrHasChildren)
	}
	if err != nil {
		return fmt.Errorf("delete space %d: %w", id, err)
	}
	return nil
}

// SetCurrentSpace persists the current Space selection.
func (s *Store) SetCurrentSpace(ctx context.Context, id int64) error {
	if _, err := s.GetSpace(ctx, id); err != nil {
		return err
	}
	return s.setSetting(ctx, currentSpaceKey, strconv.FormatInt(id, 10))
}

// CurrentSpace returns the selected Space, or nil when none is selected.
func (s *Store) CurrentSpace(ctx context.Context) (*Space, error) {
	value, ok, err := s.getSetting(ctx, currentSpaceKey)
	if err != nil || !ok {
		return nil, err
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", currentSpaceKey, err)
	}
	space, err := s.GetSpace(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return space, err
}
