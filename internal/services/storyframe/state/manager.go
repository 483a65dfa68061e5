// Package state owns the canonical scene document on the authority.
//
// Manager is the only holder of the document. The speaker, participant, roll
// and challenge managers reach it through Manager's document.Store methods, so
// a Load or SyncState that swaps the document is seen by all of them on their
// next call. Each mutation runs on a clone under one lock, is saved, swapped
// in, then broadcast to every peer; a failed save changes nothing.
package state

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/storyframe/internal/platform/id"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/challenge"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/participant"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/roll"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/speaker"
	"github.com/louisbranch/storyframe/internal/services/storyframe/transport"
)

const tracerName = "github.com/louisbranch/storyframe/internal/services/storyframe/state"

// Persister loads and saves the current scene's document.
type Persister interface {
	Load(ctx context.Context) (*document.Document, error)
	Save(ctx context.Context, doc document.Document) error
}

// SceneSwitcher changes which scene is current.
type SceneSwitcher interface {
	SetCurrentScene(ctx context.Context, sceneID string) error
}

// Manager is the orchestrator and facade over the domain managers.
type Manager struct {
	persist Persister
	scenes  SceneSwitcher
	actors  document.ActorLookup
	newID   id.Generator
	now     document.Clock
	tracer  trace.Tracer
	logf    func(format string, args ...any)

	// writeMu serializes mutations, loads and syncs.
	writeMu sync.Mutex
	// docMu guards doc for readers that must not wait on a slow save.
	docMu sync.RWMutex
	doc   *document.Document

	hooksMu  sync.RWMutex
	onChange []func(document.Document)
	onNotice []func(document.Notice)

	bindMu       sync.RWMutex
	transport    transport.Transport
	speakers     *speaker.Manager
	participants *participant.Manager
	rolls        *roll.Tracker
	challenges   *challenge.Manager
}

var (
	_ document.Store    = (*Manager)(nil)
	_ document.Notifier = (*Manager)(nil)
)

// Option configures a Manager.
type Option func(*Manager)

// WithSceneSwitcher enables ChangeScene.
func WithSceneSwitcher(scenes SceneSwitcher) Option {
	return func(m *Manager) { m.scenes = scenes }
}

// WithActors sets the actor directory used to resolve speakers and participants.
func WithActors(actors document.ActorLookup) Option {
	return func(m *Manager) { m.actors = actors }
}

// WithIDGenerator overrides how the domain managers mint ids.
func WithIDGenerator(gen id.Generator) Option {
	return func(m *Manager) { m.newID = gen }
}

// WithClock overrides the time source.
func WithClock(now document.Clock) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogf overrides where broadcast failures are logged.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(m *Manager) { m.logf = logf }
}

// NewManager returns a Manager persisting through persist. It holds no
// document until Load or SyncState, and no managers until Initialize.
func NewManager(persist Persister, opts ...Option) *Manager {
	m := &Manager{
		persist: persist,
		newID:   id.NewID,
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
		logf:    log.Printf,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Initialize binds the transport and builds the domain managers.
func (m *Manager) Initialize(t transport.Transport) {
	m.bindMu.Lock()
	defer m.bindMu.Unlock()
	m.transport = t
	m.speakers = speaker.NewManager(m,
		speaker.WithIDGenerator(m.newID),
		speaker.WithNotifier(m),
		speaker.WithActors(m.actors),
	)
	m.participants = participant.NewManager(m,
		participant.WithIDGenerator(m.newID),
		participant.WithActors(m.actors),
	)
	m.rolls = roll.NewTracker(m,
		roll.WithIDGenerator(m.newID),
		roll.WithClock(m.now),
	)
	m.challenges = challenge.NewManager(m,
		challenge.WithIDGenerator(m.newID),
		challenge.WithClock(m.now),
	)
}

// Initialized reports whether Initialize has run.
func (m *Manager) Initialized() bool {
	m.bindMu.RLock()
	defer m.bindMu.RUnlock()
	return m.transport != nil
}

// OnChange registers a hook run after every applied mutation and sync.
// Hooks run while mutations are serialized and must not call back into
// Manager mutations.
func (m *Manager) OnChange(fn func(document.Document)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// OnNotice registers a hook for GM-facing notices.
func (m *Manager) OnNotice(fn func(document.Notice)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.onNotice = append(m.onNotice, fn)
}

// Read implements document.Store.
func (m *Manager) Read() (document.Document, bool) {
	m.docMu.RLock()
	defer m.docMu.RUnlock()
	if m.doc == nil {
		return document.Document{}, false
	}
	return m.doc.Clone(), true
}

// State returns a snapshot of the owned document.
func (m *Manager) State() (document.Document, bool) {
	return m.Read()
}

// Update implements document.Store.
func (m *Manager) Update(ctx context.Context, op string, mutate document.Mutation) (document.Outcome, error) {
	ctx, span := m.tracer.Start(ctx, "state."+op)
	defer span.End()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	current, ok := m.Read()
	if !ok {
		span.SetAttributes(attribute.String("storyframe.outcome", document.OutcomeSkipped.String()))
		return document.OutcomeSkipped, nil
	}
	outcome, err := mutate(&current)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome, err
	}
	span.SetAttributes(attribute.String("storyframe.outcome", outcome.String()))
	if outcome != document.OutcomeApplied {
		return outcome, nil
	}
	if err := m.persist.Save(ctx, current); err != nil {
		err = fmt.Errorf("save state: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return document.OutcomeSkipped, err
	}
	m.swap(current)
	m.broadcast(ctx, current)
	return outcome, nil
}

// Load replaces the owned document with the current scene's stored one.
// Without a current scene the owned document is cleared.
func (m *Manager) Load(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "state.load")
	defer span.End()

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.loadLocked(ctx)
}

func (m *Manager) loadLocked(ctx context.Context) error {
	doc, err := m.persist.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	m.docMu.Lock()
	m.doc = doc
	m.docMu.Unlock()
	return nil
}

// SyncState replaces the owned document wholesale with doc, as a follower
// does on every broadcast. Nothing is persisted.
func (m *Manager) SyncState(doc document.Document) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	doc = doc.Clone()
	doc.Normalize()
	m.swap(doc)
	m.runChangeHooks(doc)
}

func (m *Manager) swap(doc document.Document) {
	m.docMu.Lock()
	defer m.docMu.Unlock()
	m.doc = &doc
}

// broadcast runs local hooks, then pushes the full document to every peer.
func (m *Manager) broadcast(ctx context.Context, doc document.Document) {
	m.runChangeHooks(doc)
	t := m.boundTransport()
	if t == nil {
		return
	}
	if err := t.ExecuteForEveryone(ctx, transport.OpSyncState, doc); err != nil {
		m.logf("storyframe: broadcast state failed err=%v", err)
	}
}

func (m *Manager) runChangeHooks(doc document.Document) {
	m.hooksMu.RLock()
	hooks := append([]func(document.Document){}, m.onChange...)
	m.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(doc.Clone())
	}
}

// Notify implements document.Notifier. Notices go to local hooks and to the
// peer whose request caused them.
func (m *Manager) Notify(ctx context.Context, notice document.Notice) {
	m.hooksMu.RLock()
	hooks := append([]func(document.Notice){}, m.onNotice...)
	m.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(notice)
	}
	caller, ok := transport.CallerFrom(ctx)
	if !ok || caller.UserID == "" {
		return
	}
	t := m.boundTransport()
	if t == nil {
		return
	}
	if err := t.ExecuteOnPeer(ctx, caller.UserID, transport.OpNotice, notice); err != nil {
		m.logf("storyframe: push notice failed user=%q err=%v", caller.UserID, err)
	}
}

func (m *Manager) boundTransport() transport.Transport {
	m.bindMu.RLock()
	defer m.bindMu.RUnlock()
	return m.transport
}

// SetActiveJournal associates a journal entry with the scene; "" clears it.
func (m *Manager) SetActiveJournal(ctx context.Context, journalID string) (document.Outcome, error) {
	if !m.Initialized() {
		return document.OutcomeSkipped, nil
	}
	return m.Update(ctx, "setActiveJournal", func(doc *document.Document) (document.Outcome, error) {
		doc.ActiveJournal = document.NullID(journalID)
		return document.OutcomeApplied, nil
	})
}

// ChangeScene makes sceneID current, loads its document and clears its
// pending rolls, which belong to the scene being left behind.
func (m *Manager) ChangeScene(ctx context.Context, sceneID string) (document.Outcome, error) {
	if !m.Initialized() {
		return document.OutcomeSkipped, nil
	}
	if m.scenes == nil {
		return document.OutcomeSkipped, fmt.Errorf("scene switching is not configured")
	}
	ctx, span := m.tracer.Start(ctx, "state.changeScene", trace.WithAttributes(attribute.String("storyframe.scene", sceneID)))
	defer span.End()

	m.writeMu.Lock()
	if err := m.scenes.SetCurrentScene(ctx, sceneID); err != nil {
		m.writeMu.Unlock()
		span.RecordError(err)
		return document.OutcomeSkipped, fmt.Errorf("set current scene: %w", err)
	}
	err := m.loadLocked(ctx)
	if err != nil {
		// The held document belongs to the previous scene; saving it now
		// would overwrite the new scene's flag.
		m.docMu.Lock()
		m.doc = nil
		m.docMu.Unlock()
	}
	m.writeMu.Unlock()
	if err != nil {
		span.RecordError(err)
		return document.OutcomeSkipped, err
	}
	return m.Update(ctx, "clearPendingRolls", func(doc *document.Document) (document.Outcome, error) {
		roll.ClearPending(doc)
		return document.OutcomeApplied, nil
	})
}
