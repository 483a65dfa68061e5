// Package redis stores scene flags in Redis, as an alternative to the SQLite
// flag table when several authority hosts share one flag slot.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/louisbranch/storyframe/internal/services/storyframe/storage"
)

const keyPrefix = "storyframe"

// FlagStore keeps one Redis string per scene flag.
type FlagStore struct {
	client goredis.UniversalClient
}

var _ storage.FlagStore = (*FlagStore)(nil)

// Open connects to addr and verifies the server answers.
func Open(ctx context.Context, addr string, db int) (*FlagStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewFlagStore(client), nil
}

// NewFlagStore wraps an existing client.
func NewFlagStore(client goredis.UniversalClient) *FlagStore {
	return &FlagStore{client: client}
}

// Close releases the client. It is nil-safe.
func (s *FlagStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Key returns the Redis key for addr.
func Key(addr storage.FlagAddress) string {
	return fmt.Sprintf("%s:scene:%s:flag:%s.%s", keyPrefix, addr.SceneID, addr.Namespace, addr.Key)
}

func (s *FlagStore) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.client == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// GetFlag implements storage.FlagStore.
func (s *FlagStore) GetFlag(ctx context.Context, addr storage.FlagAddress) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	value, err := s.client.Get(ctx, Key(addr)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flag %s: %w", Key(addr), err)
	}
	return value, nil
}

// SetFlag implements storage.FlagStore. Values never expire.
func (s *FlagStore) SetFlag(ctx context.Context, addr storage.FlagAddress, value []byte) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if addr.SceneID == "" {
		return fmt.Errorf("flag scene id is required")
	}
	if err := s.client.Set(ctx, Key(addr), value, 0).Err(); err != nil {
		return fmt.Errorf("set flag %s: %w", Key(addr), err)
	}
	return nil
}

// UnsetFlag implements storage.FlagStore.
func (s *FlagStore) UnsetFlag(ctx context.Context, addr storage.FlagAddress) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := s.client.Del(ctx, Key(addr)).Err(); err != nil {
		return fmt.Errorf("unset flag %s: %w", Key(addr), err)
	}
	return nil
}
