// Package persistence loads and saves the state document held in the current
// scene's flag slot.
//
// A missing document is created at the current version and written straight
// back; an older one is migrated and written back. With no current scene both
// Load and Save are no-ops.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/migrate"
	"github.com/louisbranch/storyframe/internal/services/storyframe/storage"
)

// SceneAccessor reports which scene is current.
type SceneAccessor interface {
	CurrentScene(ctx context.Context) (storage.SceneRecord, error)
}

// Persistence reads and writes the document flag of the current scene.
type Persistence struct {
	scenes   SceneAccessor
	flags    storage.FlagStore
	migrator migrate.Migrator
	logf     func(format string, args ...any)
}

// Option configures Persistence.
type Option func(*Persistence)

// WithMigrator replaces the default migration chain.
func WithMigrator(m migrate.Migrator) Option {
	return func(p *Persistence) { p.migrator = m }
}

// WithLogf overrides where load warnings are logged.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(p *Persistence) { p.logf = logf }
}

// New returns Persistence reading scenes and flags from the given stores.
func New(scenes SceneAccessor, flags storage.FlagStore, opts ...Option) *Persistence {
	p := &Persistence{
		scenes:   scenes,
		flags:    flags,
		migrator: migrate.New(),
		logf:     log.Printf,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SceneID returns the current scene id, or "" when there is none.
func (p *Persistence) SceneID(ctx context.Context) (string, error) {
	if p == nil || p.scenes == nil {
		return "", fmt.Errorf("persistence is not configured")
	}
	scene, err := p.scenes.CurrentScene(ctx)
	if errors.Is(err, storage.ErrNoCurrentScene) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("current scene: %w", err)
	}
	return scene.ID, nil
}

// Load returns the current scene's document, or nil when no scene is current.
func (p *Persistence) Load(ctx context.Context) (*document.Document, error) {
	sceneID, err := p.SceneID(ctx)
	if err != nil || sceneID == "" {
		return nil, err
	}

	raw, err := p.flags.GetFlag(ctx, flagAddress(sceneID))
	if errors.Is(err, storage.ErrNotFound) {
		doc := document.Default()
		if err := p.write(ctx, sceneID, doc); err != nil {
			return nil, err
		}
		return &doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state flag: %w", err)
	}

	result, err := p.migrator.Decode(raw)
	if err != nil {
		p.logf("storyframe: stored state is unreadable, resetting scene=%q err=%v", sceneID, err)
		doc := document.Default()
		if err := p.write(ctx, sceneID, doc); err != nil {
			return nil, err
		}
		return &doc, nil
	}
	doc := result.Document
	if result.Migrated {
		p.logf("storyframe: migrated state scene=%q from=%d to=%d", sceneID, result.FromVersion, doc.Version)
		if err := p.write(ctx, sceneID, doc); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

// Save writes doc to the current scene unconditionally. Without a current
// scene it does nothing.
func (p *Persistence) Save(ctx context.Context, doc document.Document) error {
	sceneID, err := p.SceneID(ctx)
	if err != nil || sceneID == "" {
		return err
	}
	return p.write(ctx, sceneID, doc)
}

func (p *Persistence) write(ctx context.Context, sceneID string, doc document.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := p.flags.SetFlag(ctx, flagAddress(sceneID), data); err != nil {
		return fmt.Errorf("write state flag: %w", err)
	}
	return nil
}

func flagAddress(sceneID string) storage.FlagAddress {
	return storage.FlagAddress{
		SceneID:   sceneID,
		Namespace: document.FlagNamespace,
		Key:       document.FlagKey,
	}
}
