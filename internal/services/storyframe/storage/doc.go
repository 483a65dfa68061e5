// Package storage defines the host-side persistence storyframe reads and
// writes: scenes, their namespaced flags, and the actor directory.
//
// Implementations live in subpackages. sqlite holds all three; redis holds
// scene flags only and is paired with a sqlite scene and actor store.
//
// Common error types:
//   - ErrNotFound: requested record is missing
//   - ErrNoCurrentScene: no scene is marked current
package storage
