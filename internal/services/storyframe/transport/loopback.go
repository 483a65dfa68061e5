package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// PushFunc receives a push addressed to a local peer.
type PushFunc func(ctx context.Context, op string, payload json.RawMessage)

// Loopback is an in-process Transport. The authority and its peers share one
// process, which is how the GM host talks to itself and how tests run.
type Loopback struct {
	dispatcher Dispatcher
	caller     Caller

	mu    sync.RWMutex
	peers map[string][]PushFunc
}

var _ Transport = (*Loopback)(nil)

// NewLoopback returns a loopback that dispatches to d. Requests without a
// caller in their context run as caller.
func NewLoopback(d Dispatcher, caller Caller) *Loopback {
	return &Loopback{dispatcher: d, caller: caller, peers: map[string][]PushFunc{}}
}

// SetDispatcher binds the authority after construction.
func (l *Loopback) SetDispatcher(d Dispatcher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dispatcher = d
}

// Subscribe registers a local peer for userID's pushes. The returned func
// removes it.
func (l *Loopback) Subscribe(userID string, fn PushFunc) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.peers[userID] = append(l.peers[userID], fn)
	index := len(l.peers[userID]) - 1
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		list := l.peers[userID]
		if index < len(list) {
			list[index] = nil
		}
	}
}

// ExecuteAsAuthority implements Transport.
func (l *Loopback) ExecuteAsAuthority(ctx context.Context, op string, args any, reply any) error {
	l.mu.RLock()
	dispatcher := l.dispatcher
	l.mu.RUnlock()
	if dispatcher == nil {
		return fmt.Errorf("loopback has no authority")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	if _, ok := CallerFrom(ctx); !ok {
		ctx = WithCaller(ctx, l.caller)
	}
	result, err := dispatcher.Dispatch(ctx, op, raw)
	if err != nil {
		return err
	}
	return Decode(result, reply)
}

// ExecuteForEveryone implements Transport.
func (l *Loopback) ExecuteForEveryone(ctx context.Context, op string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	for _, fn := range l.subscribers("") {
		fn(ctx, op, raw)
	}
	return nil
}

// ExecuteOnPeer implements Transport.
func (l *Loopback) ExecuteOnPeer(ctx context.Context, peerID string, op string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	for _, fn := range l.subscribers(peerID) {
		fn(ctx, op, raw)
	}
	return nil
}

// subscribers returns the push funcs for userID, or for everyone when
// userID is empty.
func (l *Loopback) subscribers(userID string) []PushFunc {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []PushFunc
	for id, list := range l.peers {
		if userID != "" && id != userID {
			continue
		}
		for _, fn := range list {
			if fn != nil {
				out = append(out, fn)
			}
		}
	}
	return out
}
