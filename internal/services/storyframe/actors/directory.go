// Package actors dereferences actor ids for speakers and participants through
// an in-process TTL cache in front of the host actor store.
package actors

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
	"github.com/louisbranch/storyframe/internal/services/storyframe/storage"
)

const (
	defaultTTL     = 5 * time.Minute
	cleanupEvery   = 10 * time.Minute
	cacheKeyPrefix = "actor:"
)

// Directory is a cached document.ActorLookup. Misses are not cached, so a
// newly created actor resolves on the next call.
type Directory struct {
	store storage.ActorStore
	cache *cache.Cache
}

var _ document.ActorLookup = (*Directory)(nil)

// NewDirectory wraps store with a cache whose entries live for ttl.
func NewDirectory(store storage.ActorStore, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Directory{
		store: store,
		cache: cache.New(ttl, cleanupEvery),
	}
}

// Actor implements document.ActorLookup.
func (d *Directory) Actor(ctx context.Context, actorID string) (document.Actor, error) {
	if d == nil || d.store == nil {
		return document.Actor{}, fmt.Errorf("actor directory is not configured")
	}
	key := cacheKeyPrefix + actorID
	if cached, found := d.cache.Get(key); found {
		return cached.(document.Actor), nil
	}
	record, err := d.store.GetActor(ctx, actorID)
	if err != nil {
		return document.Actor{}, fmt.Errorf("get actor %s: %w", actorID, err)
	}
	actor := document.Actor{
		ID:          record.ID,
		Name:        record.Name,
		Image:       record.Image,
		OwnerUserID: record.OwnerUserID,
	}
	d.cache.Set(key, actor, cache.DefaultExpiration)
	return actor, nil
}

// Forget drops a cached actor so the next lookup reads the store.
func (d *Directory) Forget(actorID string) {
	if d == nil {
		return
	}
	d.cache.Delete(cacheKeyPrefix + actorID)
}

// Put writes an actor through to the store and refreshes its cache entry.
func (d *Directory) Put(ctx context.Context, record storage.ActorRecord) error {
	if d == nil || d.store == nil {
		return fmt.Errorf("actor directory is not configured")
	}
	if err := d.store.PutActor(ctx, record); err != nil {
		return err
	}
	d.Forget(record.ID)
	return nil
}
