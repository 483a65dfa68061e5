package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/louisbranch/storyframe/internal/services/storyframe/storage"
)

// Seed is the JSON layout of a seed file: the host scenes and actors a fresh
// database starts with.
type Seed struct {
	Scenes []SeedScene `json:"scenes"`
	Actors []SeedActor `json:"actors"`
}

// SeedScene is one scene in a seed file.
type SeedScene struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Current bool   `json:"current"`
}

// SeedActor is one actor in a seed file.
type SeedActor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Image       string `json:"img"`
	OwnerUserID string `json:"ownerUserId"`
}

// LoadSeedFile reads a seed file.
func LoadSeedFile(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("decode seed file %s: %w", path, err)
	}
	return seed, nil
}

// ApplySeed upserts every scene and actor in seed.
func ApplySeed(ctx context.Context, seed Seed, scenes storage.SceneStore, actors storage.ActorStore) error {
	for _, scene := range seed.Scenes {
		if strings.TrimSpace(scene.ID) == "" {
			return errors.New("seed scene id is required")
		}
		if err := scenes.PutScene(ctx, storage.SceneRecord{ID: scene.ID, Name: scene.Name, IsCurrent: scene.Current}); err != nil {
			return fmt.Errorf("seed scene %s: %w", scene.ID, err)
		}
	}
	for _, actor := range seed.Actors {
		if strings.TrimSpace(actor.ID) == "" {
			return errors.New("seed actor id is required")
		}
		record := storage.ActorRecord{ID: actor.ID, Name: actor.Name, Image: actor.Image, OwnerUserID: actor.OwnerUserID}
		if err := actors.PutActor(ctx, record); err != nil {
			return fmt.Errorf("seed actor %s: %w", actor.ID, err)
		}
	}
	return nil
}

// ensureScene creates sceneID when missing and makes it current.
func ensureScene(ctx context.Context, scenes storage.SceneStore, sceneID string) error {
	_, err := scenes.GetScene(ctx, sceneID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return scenes.PutScene(ctx, storage.SceneRecord{ID: sceneID, Name: sceneID, IsCurrent: true})
	case err != nil:
		return fmt.Errorf("get scene %s: %w", sceneID, err)
	default:
		return scenes.SetCurrentScene(ctx, sceneID)
	}
}
