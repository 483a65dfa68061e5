package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/storyframe/internal/services/storyframe/storage"
)

// GetFlag returns the raw JSON stored at addr.
func (s *Store) GetFlag(ctx context.Context, addr storage.FlagAddress) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var value string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT value_json FROM scene_flags WHERE scene_id = ? AND namespace = ? AND flag_key = ?`,
		addr.SceneID, addr.Namespace, addr.Key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flag %s.%s: %w", addr.Namespace, addr.Key, err)
	}
	return []byte(value), nil
}

// SetFlag stores value at addr, replacing any previous value.
func (s *Store) SetFlag(ctx context.Context, addr storage.FlagAddress, value []byte) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if addr.SceneID == "" {
		return fmt.Errorf("flag scene id is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO scene_flags (scene_id, namespace, flag_key, value_json, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (scene_id, namespace, flag_key) DO UPDATE SET
    value_json = excluded.value_json,
    updated_at = excluded.updated_at`,
		addr.SceneID, addr.Namespace, addr.Key, string(value), toMillis(s.now()),
	); err != nil {
		return fmt.Errorf("set flag %s.%s: %w", addr.Namespace, addr.Key, err)
	}
	return nil
}

// UnsetFlag removes the value at addr. Removing a missing flag is a no-op.
func (s *Store) UnsetFlag(ctx context.Context, addr storage.FlagAddress) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM scene_flags WHERE scene_id = ? AND namespace = ? AND flag_key = ?`,
		addr.SceneID, addr.Namespace, addr.Key,
	); err != nil {
		return fmt.Errorf("unset flag %s.%s: %w", addr.Namespace, addr.Key, err)
	}
	return nil
}
