package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/storyframe/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// ErrNoCurrentScene indicates no scene is marked current.
var ErrNoCurrentScene = apperrors.New(apperrors.CodeNoScene, "no current scene")

// SceneRecord is a host scene.
type SceneRecord struct {
	ID        string
	Name      string
	IsCurrent bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ActorRecord is a host actor as storyframe sees it.
type ActorRecord struct {
	ID          string
	Name        string
	Image       string
	OwnerUserID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FlagAddress names one flag value on one scene.
type FlagAddress struct {
	SceneID   string
	Namespace string
	Key       string
}

// SceneStore reads and switches host scenes.
type SceneStore interface {
	PutScene(ctx context.Context, scene SceneRecord) error
	GetScene(ctx context.Context, sceneID string) (SceneRecord, error)
	ListScenes(ctx context.Context) ([]SceneRecord, error)
	// CurrentScene returns ErrNoCurrentScene when none is current.
	CurrentScene(ctx context.Context) (SceneRecord, error)
	// SetCurrentScene marks sceneID current and every other scene not current.
	SetCurrentScene(ctx context.Context, sceneID string) error
}

// FlagStore holds opaque JSON values keyed by scene, namespace and key.
type FlagStore interface {
	// GetFlag returns ErrNotFound when the flag is unset.
	GetFlag(ctx context.Context, addr FlagAddress) ([]byte, error)
	SetFlag(ctx context.Context, addr FlagAddress, value []byte) error
	UnsetFlag(ctx context.Context, addr FlagAddress) error
}

// ActorStore reads and seeds host actors.
type ActorStore interface {
	PutActor(ctx context.Context, actor ActorRecord) error
	// GetActor returns ErrNotFound when the actor is gone.
	GetActor(ctx context.Context, actorID string) (ActorRecord, error)
	ListActors(ctx context.Context) ([]ActorRecord, error)
}
