package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/storyframe/internal/services/storyframe/storage"
)

// PutActor inserts or updates an actor.
func (s *Store) PutActor(ctx context.Context, actor storage.ActorRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	actorID := strings.TrimSpace(actor.ID)
	if actorID == "" {
		return fmt.Errorf("actor id is required")
	}
	now := s.now()
	createdAt := actor.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO actors (id, name, img, owner_user_id, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    img = excluded.img,
    owner_user_id = excluded.owner_user_id,
    updated_at = excluded.updated_at`,
		actorID, actor.Name, actor.Image, actor.OwnerUserID, toMillis(createdAt), toMillis(now),
	); err != nil {
		return fmt.Errorf("put actor: %w", err)
	}
	return nil
}

// GetActor returns an actor by id.
func (s *Store) GetActor(ctx context.Context, actorID string) (storage.ActorRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.ActorRecord{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, name, img, owner_user_id, created_at, updated_at FROM actors WHERE id = ?`, actorID)
	actor, err := scanActor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ActorRecord{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.ActorRecord{}, fmt.Errorf("get actor: %w", err)
	}
	return actor, nil
}

// ListActors returns every actor ordered by name.
func (s *Store) ListActors(ctx context.Context) ([]storage.ActorRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, name, img, owner_user_id, created_at, updated_at FROM actors ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list actors: %w", err)
	}
	defer rows.Close()

	var actors []storage.ActorRecord
	for rows.Next() {
		actor, err := scanActor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan actor: %w", err)
		}
		actors = append(actors, actor)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read actors: %w", err)
	}
	return actors, nil
}

func scanActor(row rowScanner) (storage.ActorRecord, error) {
	var (
		actor     storage.ActorRecord
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&actor.ID, &actor.Name, &actor.Image, &actor.OwnerUserID, &createdAt, &updatedAt); err != nil {
		return storage.ActorRecord{}, err
	}
	actor.CreatedAt = fromMillis(createdAt)
	actor.UpdatedAt = fromMillis(updatedAt)
	return actor, nil
}
