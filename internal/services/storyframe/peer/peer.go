// Package peer is the follower side of storyframe. A Peer keeps a local
// replica of the scene state that the authority replaces wholesale on every
// broadcast, and forwards requests to the authority.
package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/louisbranch/storyframe/internal/services/storyframe/authority"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/speaker"
	"github.com/louisbranch/storyframe/internal/services/storyframe/state"
	"github.com/louisbranch/storyframe/internal/services/storyframe/transport"
)

// ErrReadOnly is returned when something tries to persist a replica.
var ErrReadOnly = errors.New("peer replicas are not persisted")

// replicaPersister backs a follower's state manager; replicas are only ever
// replaced by SyncState.
type replicaPersister struct{}

func (replicaPersister) Load(context.Context) (*document.Document, error) {
	return nil, nil
}

func (replicaPersister) Save(context.Context, document.Document) error {
	return ErrReadOnly
}

// Peer is a follower connected to the authority.
type Peer struct {
	replica *state.Manager
	logf    func(format string, args ...any)

	mu        sync.RWMutex
	authority transport.Transport
	onPrompt  []func(document.PendingRoll)
	onNotice  []func(document.Notice)
	synced    chan struct{}
	syncOnce  sync.Once
}

// Option configures a Peer.
type Option func(*Peer)

// WithLogf overrides the peer logger.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(p *Peer) { p.logf = logf }
}

// New returns a Peer with an empty replica.
func New(opts ...Option) *Peer {
	p := &Peer{
		logf:   log.Printf,
		synced: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.replica = state.NewManager(replicaPersister{}, state.WithLogf(p.logf))
	return p
}

// Bind sets the transport requests are forwarded over.
func (p *Peer) Bind(t transport.Transport) {
	p.mu.Lock()
	p.authority = t
	p.mu.Unlock()
	p.replica.Initialize(t)
}

// Replica exposes the local state manager for reads and resolution helpers.
func (p *Peer) Replica() *state.Manager {
	return p.replica
}

// State returns the replica's document.
func (p *Peer) State() (document.Document, bool) {
	return p.replica.State()
}

// Synced is closed after the first state sync arrives.
func (p *Peer) Synced() <-chan struct{} {
	return p.synced
}

// OnChange registers a hook run on every state sync.
func (p *Peer) OnChange(fn func(document.Document)) {
	p.replica.OnChange(fn)
}

// OnPrompt registers a hook for roll prompts addressed to this user.
func (p *Peer) OnPrompt(fn func(document.PendingRoll)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPrompt = append(p.onPrompt, fn)
}

// OnNotice registers a hook for notices sent to this user.
func (p *Peer) OnNotice(fn func(document.Notice)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNotice = append(p.onNotice, fn)
}

// HandlePush applies a push from the authority. It has the shape of
// transport.PushFunc.
func (p *Peer) HandlePush(_ context.Context, op string, payload json.RawMessage) {
	switch op {
	case transport.OpSyncState:
		if string(payload) == "null" {
			return
		}
		var doc document.Document
		if err := json.Unmarshal(payload, &doc); err != nil {
			p.logf("peer: invalid state push err=%v", err)
			return
		}
		p.replica.SyncState(doc)
		p.syncOnce.Do(func() { close(p.synced) })
	case transport.OpPromptRoll:
		var roll document.PendingRoll
		if err := json.Unmarshal(payload, &roll); err != nil {
			p.logf("peer: invalid roll prompt err=%v", err)
			return
		}
		p.mu.RLock()
		hooks := append([]func(document.PendingRoll){}, p.onPrompt...)
		p.mu.RUnlock()
		for _, fn := range hooks {
			fn(roll)
		}
	case transport.OpNotice:
		var notice document.Notice
		if err := json.Unmarshal(payload, &notice); err != nil {
			p.logf("peer: invalid notice err=%v", err)
			return
		}
		p.mu.RLock()
		hooks := append([]func(document.Notice){}, p.onNotice...)
		p.mu.RUnlock()
		for _, fn := range hooks {
			fn(notice)
		}
	default:
		p.logf("peer: unknown push op=%q", op)
	}
}

func (p *Peer) authorityTransport() (transport.Transport, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.authority == nil {
		return nil, errors.New("peer is not connected")
	}
	return p.authority, nil
}

// Execute forwards op with raw JSON args and returns the raw result.
func (p *Peer) Execute(ctx context.Context, op string, args json.RawMessage) (json.RawMessage, error) {
	t, err := p.authorityTransport()
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		args = nil
	}
	var result json.RawMessage
	if err := t.ExecuteAsAuthority(ctx, op, args, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Refresh fetches the authority's state and syncs the replica with it.
func (p *Peer) Refresh(ctx context.Context) error {
	raw, err := p.Execute(ctx, transport.OpGetState, nil)
	if err != nil {
		return fmt.Errorf("get state: %w", err)
	}
	p.HandlePush(ctx, transport.OpSyncState, raw)
	return nil
}

func (p *Peer) call(ctx context.Context, op string, args any, reply any) error {
	t, err := p.authorityTransport()
	if err != nil {
		return err
	}
	return t.ExecuteAsAuthority(ctx, op, args, reply)
}

// AddSpeaker asks the authority to add a speaker.
func (p *Peer) AddSpeaker(ctx context.Context, req speaker.AddRequest) (authority.SpeakerResult, error) {
	var result authority.SpeakerResult
	err := p.call(ctx, transport.OpAddSpeaker, req, &result)
	return result, err
}

// SetActiveSpeaker asks the authority to put a speaker on camera.
func (p *Peer) SetActiveSpeaker(ctx context.Context, speakerID string) (document.Outcome, error) {
	var result authority.OutcomeResult
	err := p.call(ctx, transport.OpSetActiveSpeaker, map[string]string{"speakerId": speakerID}, &result)
	return result.Outcome, err
}

// RemoveSpeaker asks the authority to drop a speaker.
func (p *Peer) RemoveSpeaker(ctx context.Context, speakerID string) (document.Outcome, error) {
	var result authority.OutcomeResult
	err := p.call(ctx, transport.OpRemoveSpeaker, map[string]string{"speakerId": speakerID}, &result)
	return result.Outcome, err
}

// SubmitRollResult sends this user's result for a prompted roll.
func (p *Peer) SubmitRollResult(ctx context.Context, result document.RollResult) (document.Outcome, error) {
	var reply authority.OutcomeResult
	err := p.call(ctx, transport.OpSubmitRollResult, result, &reply)
	return reply.Outcome, err
}
