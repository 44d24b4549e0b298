package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// Stats returns Media counts keyed by decoded status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM media GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("media stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var raw int64
		var count int
		if err := rows.Scan(&raw, &count); err != nil {
			return nil, err
		}
		stats[decodeStatus(raw)] += count
	}
	return stats, rows.Err()
}

// CheckHealth returns diagnostic information about the vault database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("vault database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat vault database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("vault database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping vault database: %w", err)
	}
	health.DatabaseReadable = true

	if version, err := s.SchemaVersion(connCtx); err == nil {
		health.SchemaVersion = version
	} else {
		health.Error = err.Error()
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityOK = integrity == "ok"

	fkRows, err := s.db.QueryContext(connCtx, "PRAGMA foreign_key_check")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("foreign key check: %w", err)
	}
	defer fkRows.Close()
	for fkRows.Next() {
		health.ForeignKeyViolations++
	}
	if err := fkRows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate foreign key check: %w", err)
	}
	return health, nil
}
