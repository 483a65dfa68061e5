// Package documenttest provides in-memory document.Store and collaborator
// fakes for manager tests.
package documenttest

import (
	"context"
	"errors"
	"sync"

	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
)

// Store is an in-memory document.Store that keeps only applied mutations.
type Store struct {
	mu     sync.Mutex
	doc    document.Document
	loaded bool

	// Ops lists every op name passed to Update, in call order.
	Ops []string
	// Commits counts applied mutations.
	Commits int
	// FailNext makes the next applied mutation fail as a storage write would.
	FailNext error
}

// NewStore returns a store holding doc.
func NewStore(doc document.Document) *Store {
	doc.Normalize()
	return &Store{doc: doc, loaded: true}
}

// NewEmptyStore returns a store with no loaded document.
func NewEmptyStore() *Store {
	return &Store{}
}

// Read implements document.Store.
func (s *Store) Read() (document.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return document.Document{}, false
	}
	return s.doc.Clone(), true
}

// Update implements document.Store.
func (s *Store) Update(_ context.Context, op string, mutate document.Mutation) (document.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Ops = append(s.Ops, op)
	if !s.loaded {
		return document.OutcomeSkipped, nil
	}
	next := s.doc.Clone()
	outcome, err := mutate(&next)
	if err != nil {
		return outcome, err
	}
	if outcome != document.OutcomeApplied {
		return outcome, nil
	}
	if s.FailNext != nil {
		err := s.FailNext
		s.FailNext = nil
		return document.OutcomeSkipped, err
	}
	s.doc = next
	s.Commits++
	return outcome, nil
}

// Replace swaps the held document, as a wholesale sync would.
func (s *Store) Replace(doc document.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.Normalize()
	s.doc = doc
	s.loaded = true
}

// Notices records notices sent through it.
type Notices struct {
	mu   sync.Mutex
	List []document.Notice
}

// Notify implements document.Notifier.
func (n *Notices) Notify(_ context.Context, notice document.Notice) {
	if n == nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.List = append(n.List, notice)
}

// ErrActorNotFound is returned by Actors for unknown ids.
var ErrActorNotFound = errors.New("actor not found")

// Actors is a map-backed document.ActorLookup.
type Actors map[string]document.Actor

// Actor implements document.ActorLookup.
func (a Actors) Actor(_ context.Context, id string) (document.Actor, error) {
	actor, ok := a[id]
	if !ok {
		return document.Actor{}, ErrActorNotFound
	}
	return actor, nil
}
