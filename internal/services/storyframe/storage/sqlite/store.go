// Package sqlite implements the storyframe host storage on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/storyframe/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/storyframe/internal/services/storyframe/storage"
	"github.com/louisbranch/storyframe/internal/services/storyframe/storage/sqlite/migrations"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis reverses toMillis for persisted millisecond timestamps.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides a SQLite-backed scene, flag and actor store.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

var (
	_ storage.SceneStore = (*Store)(nil)
	_ storage.FlagStore  = (*Store)(nil)
	_ storage.ActorStore = (*Store)(nil)
)

// Open opens a SQLite host store at the provided path and applies migrations.
func Open(path string) (*Store, error) {
	return openStore(path, migrations.HostFS, "host")
}

// Close closes the underlying SQLite database.
//
// Close is nil-safe so callers can defer it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func openStore(path string, migrationFS fs.FS, migrationRoot string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrationFS, migrationRoot); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// PutScene inserts or renames a scene. A record marked current becomes the
// only current scene.
func (s *Store) PutScene(ctx context.Context, scene storage.SceneRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	sceneID := strings.TrimSpace(scene.ID)
	if sceneID == "" {
		return fmt.Errorf("scene id is required")
	}
	now := s.now()
	createdAt := scene.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put scene: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO scenes (id, name, is_current, created_at, updated_at)
VALUES (?, ?, 0, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		sceneID, scene.Name, toMillis(createdAt), toMillis(now),
	); err != nil {
		return fmt.Errorf("put scene: %w", err)
	}
	if scene.IsCurrent {
		if err := markCurrent(ctx, tx, sceneID, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put scene: %w", err)
	}
	return nil
}

// GetScene returns a scene by id.
func (s *Store) GetScene(ctx context.Context, sceneID string) (storage.SceneRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.SceneRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, is_current, created_at, updated_at FROM scenes WHERE id = ?`, sceneID)
	scene, err := scanScene(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SceneRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.SceneRecord{}, fmt.Errorf("get scene: %w", err)
	}
	return scene, nil
}

// ListScenes returns every scene, oldest first.
func (s *Store) ListScenes(ctx context.Context) ([]storage.SceneRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, is_current, created_at, updated_at FROM scenes ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	defer rows.Close()

	var scenes []storage.SceneRecord
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		scenes = append(scenes, scene)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read scenes: %w", err)
	}
	return scenes, nil
}

// CurrentScene returns the scene marked current.
func (s *Store) CurrentScene(ctx context.Context) (storage.SceneRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.SceneRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, is_current, created_at, updated_at FROM scenes WHERE is_current = 1 LIMIT 1`)
	scene, err := scanScene(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SceneRecord{}, storage.ErrNoCurrentScene
	}
	if err != nil {
		return storage.SceneRecord{}, fmt.Errorf("get current scene: %w", err)
	}
	return scene, nil
}

// SetCurrentScene marks sceneID as the only current scene.
func (s *Store) SetCurrentScene(ctx context.Context, sceneID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set current scene: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var found int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM scenes WHERE id = ?`, sceneID).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check scene: %w", err)
	}
	if err := markCurrent(ctx, tx, sceneID, s.now()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set current scene: %w", err)
	}
	return nil
}

func markCurrent(ctx context.Context, tx *sql.Tx, sceneID string, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `
UPDATE scenes
SET is_current = CASE WHEN id = ? THEN 1 ELSE 0 END,
    updated_at = CASE WHEN id = ? OR is_current = 1 THEN ? ELSE updated_at END`,
		sceneID, sceneID, toMillis(now),
	); err != nil {
		return fmt.Errorf("mark current scene: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScene(row rowScanner) (storage.SceneRecord, error) {
	var (
		scene     storage.SceneRecord
		isCurrent int
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&scene.ID, &scene.Name, &isCurrent, &createdAt, &updatedAt); err != nil {
		return storage.SceneRecord{}, err
	}
	scene.IsCurrent = isCurrent == 1
	scene.CreatedAt = fromMillis(createdAt)
	scene.UpdatedAt = fromMillis(updatedAt)
	return scene, nil
}
