package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TransitionStatus moves a Media from one status to another with a
// compare-and-swap on the current status. message replaces status_message
// (empty clears it).
func (s *Store) TransitionStatus(ctx context.Context, id int64, from, to Status, message string) error {
	if err := s.checkTransition(id, from, to); err != nil {
		return err
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE media SET status = ?, status_message = ?, update_date = ?
         WHERE id = ? AND status = ?`,
		int(to), nullableString(message), nowString(), id, int(from),
	)
	if err != nil {
		return fmt.Errorf("transition media %d %s -> %s: %w", id, from, to, err)
	}
	return s.resolveCAS(ctx, res, id, from, to)
}

// MarkLocal completes an import: New → Local together with the sealed
// payload details.
func (s *Store) MarkLocal(ctx context.Context, id int64, payload SealedPayload) error {
	if err := s.checkTransition(id, StatusNew, StatusLocal); err != nil {
		return err
	}
	if payload.EncryptedPath == "" {
		return errors.New("encrypted path is required")
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE media SET status = ?, status_message = NULL, encrypted_path = ?, mime_type = ?,
             content_length = ?, media_hash = ?, update_date = ?
         WHERE id = ? AND status = ?`,
		int(StatusLocal),
		payload.EncryptedPath,
		nullableString(payload.MimeType),
		payload.ContentLength,
		nullableString(payload.MediaHash),
		nowString(),
		id,
		int(StatusNew),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("mark media %d local: %w: %s", id, ErrPayloadInUse, payload.EncryptedPath)
	}
	if err != nil {
		return fmt.Errorf("mark media %d local: %w", id, err)
	}
	return s.resolveCAS(ctx, res, id, StatusNew, StatusLocal)
}

// ResetStuckUploads returns Media left in Uploading by a crash to Queued.
func (s *Store) ResetStuckUploads(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE media SET status = ?, update_date = ? WHERE status = ?`,
		int(StatusQueued), nowString(), int(StatusUploading),
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck uploads: %w", err)
	}
	return res.RowsAffected()
}

// SetPriorities assigns dense descending priorities (len(ids) .. 1) in the
// given order within one transaction.
func (s *Store) SetPriorities(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `UPDATE media SET priority = ? WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, len(ids)-i, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set priorities: %w", err)
	}
	return nil
}

func (s *Store) checkTransition(id int64, from, to Status) error {
	if err := checkWritable(to); err != nil {
		return err
	}
	if !CanTransition(from, to) {
		return &TransitionError{MediaID: id, From: from, To: to, Actual: from}
	}
	return nil
}

// resolveCAS turns a zero-row CAS update into ErrMediaNotFound or a
// TransitionError carrying the status actually found.
func (s *Store) resolveCAS(ctx context.Context, res sql.Result, id int64, from, to Status) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var raw int64
	err = s.db.QueryRowContext(ctx, `SELECT status FROM media WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("media %d: %w", id, ErrMediaNotFound)
	}
	if err != nil {
		return fmt.Errorf("read media %d status: %w", id, err)
	}
	return &TransitionError{MediaID: id, From: from, To: to, Actual: decodeStatus(raw)}
}
