package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	apperrors "github.com/louisbranch/storyframe/internal/platform/errors"
	"github.com/louisbranch/storyframe/internal/platform/timeouts"
	"github.com/louisbranch/storyframe/internal/services/storyframe/transport"
)

// Authenticator resolves a join token into the connecting caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (transport.Caller, error)
}

type callerContextKey struct{}

// Hub is the authority side of the transport. It serves peer connections,
// dispatches their requests and pushes state to them.
type Hub struct {
	auth         Authenticator
	local        transport.Caller
	writeTimeout time.Duration
	logf         func(format string, args ...any)

	dispatchMu sync.RWMutex
	dispatcher transport.Dispatcher

	mu    sync.RWMutex
	peers map[string]map[*wsPeer]struct{}
}

var _ transport.Transport = (*Hub)(nil)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLocalCaller sets the caller used for in-process requests that carry
// none, normally the GM running the authority.
func WithLocalCaller(caller transport.Caller) HubOption {
	return func(h *Hub) { h.local = caller }
}

// WithWriteTimeout bounds each frame write to a peer.
func WithWriteTimeout(timeout time.Duration) HubOption {
	return func(h *Hub) { h.writeTimeout = timeout }
}

// WithHubLogf overrides the hub logger.
func WithHubLogf(logf func(format string, args ...any)) HubOption {
	return func(h *Hub) { h.logf = logf }
}

// NewHub returns a hub authenticating peers with auth.
func NewHub(auth Authenticator, opts ...HubOption) *Hub {
	h := &Hub{
		auth:         auth,
		writeTimeout: timeouts.PeerWrite,
		logf:         log.Printf,
		peers:        make(map[string]map[*wsPeer]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetDispatcher binds the authority operations.
func (h *Hub) SetDispatcher(d transport.Dispatcher) {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()
	h.dispatcher = d
}

func (h *Hub) currentDispatcher() transport.Dispatcher {
	h.dispatchMu.RLock()
	defer h.dispatchMu.RUnlock()
	return h.dispatcher
}

// PeerCount returns the number of open peer connections.
func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for _, set := range h.peers {
		count += len(set)
	}
	return count
}

// ServeHTTP authenticates the request and upgrades it to a peer connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.auth == nil {
		http.Error(w, "peer auth is not configured", http.StatusServiceUnavailable)
		return
	}
	token := tokenFromRequest(r)
	if token == "" {
		h.logf("storyframe: websocket unauthorized: missing token remote=%s", r.RemoteAddr)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	caller, err := h.auth.Authenticate(r.Context(), token)
	if err != nil || strings.TrimSpace(caller.UserID) == "" || !caller.Role.Valid() {
		h.logf("storyframe: websocket unauthorized remote=%s err=%v", r.RemoteAddr, err)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	r = r.WithContext(context.WithValue(r.Context(), callerContextKey{}, caller))
	websocket.Handler(h.handleConn).ServeHTTP(w, r)
}

// tokenFromRequest reads a bearer token, falling back to the token query
// parameter for clients that cannot set headers.
func tokenFromRequest(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func (h *Hub) handleConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	request := conn.Request()
	caller, _ := request.Context().Value(callerContextKey{}).(transport.Caller)
	ctx := transport.WithCaller(request.Context(), caller)

	peer := newWSPeer(conn, h.writeTimeout)
	h.join(ctx, caller, peer)
	defer h.leave(caller.UserID, peer)

	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			decodeErrors++
			_ = h.writeError(peer, "", apperrors.New(apperrors.CodeInvalidArgument, "invalid frame payload"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			// The stream is unusable after a syntax error.
			decoder = json.NewDecoder(conn)
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = h.writeError(peer, frame.RequestID, apperrors.New(apperrors.CodeInvalidArgument, "payload too large"))
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = h.writeError(peer, frame.RequestID, apperrors.New(apperrors.CodeRateLimited, "rate limit exceeded"))
			return
		}

		switch frame.Type {
		case FrameExecute:
			h.handleExecute(ctx, peer, frame)
		default:
			_ = h.writeError(peer, frame.RequestID, apperrors.New(apperrors.CodeInvalidArgument, "unsupported frame type"))
		}
	}
}

// join registers peer and sends it the current state. The peer's writer is
// held until the snapshot is written, so a broadcast racing the join lands
// after it.
func (h *Hub) join(ctx context.Context, caller transport.Caller, peer *wsPeer) {
	peer.mu.Lock()
	defer peer.mu.Unlock()

	h.mu.Lock()
	set, ok := h.peers[caller.UserID]
	if !ok {
		set = make(map[*wsPeer]struct{})
		h.peers[caller.UserID] = set
	}
	set[peer] = struct{}{}
	h.mu.Unlock()
	h.logf("storyframe: peer joined user=%q role=%q", caller.UserID, caller.Role)

	dispatcher := h.currentDispatcher()
	if dispatcher == nil {
		return
	}
	doc, err := dispatcher.Dispatch(ctx, transport.OpGetState, nil)
	if err != nil {
		h.logf("storyframe: initial state failed user=%q err=%v", caller.UserID, err)
		return
	}
	frame := wsFrame{Type: FramePush, Payload: mustJSON(pushPayload{Op: transport.OpSyncState, Payload: mustJSON(doc)})}
	if err := peer.encodeLocked(frame); err != nil {
		h.logf("storyframe: initial state write failed user=%q err=%v", caller.UserID, err)
	}
}

func (h *Hub) leave(userID string, peer *wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.peers[userID]
	delete(set, peer)
	if len(set) == 0 {
		delete(h.peers, userID)
	}
	h.logf("storyframe: peer left user=%q", userID)
}

func (h *Hub) handleExecute(ctx context.Context, peer *wsPeer, frame wsFrame) {
	var payload executePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = h.writeError(peer, frame.RequestID, apperrors.New(apperrors.CodeInvalidArgument, "invalid execute payload"))
		return
	}
	op := strings.TrimSpace(payload.Op)
	if op == "" {
		_ = h.writeError(peer, frame.RequestID, apperrors.New(apperrors.CodeInvalidArgument, "op is required"))
		return
	}
	dispatcher := h.currentDispatcher()
	if dispatcher == nil {
		_ = h.writeError(peer, frame.RequestID, apperrors.New(apperrors.CodeStateUnavailable, "authority is not ready"))
		return
	}

	result, err := dispatcher.Dispatch(ctx, op, payload.Args)
	if err != nil {
		caller, _ := transport.CallerFrom(ctx)
		h.logf("storyframe: execute failed op=%q user=%q err=%v", op, caller.UserID, err)
		_ = h.writeError(peer, frame.RequestID, err)
		return
	}
	_ = peer.writeFrame(wsFrame{
		Type:      FrameResult,
		RequestID: frame.RequestID,
		Payload:   mustJSON(resultPayload{Result: mustJSON(result)}),
	})
}

func (h *Hub) writeError(peer *wsPeer, requestID string, err error) error {
	return peer.writeFrame(wsFrame{
		Type:      FrameError,
		RequestID: requestID,
		Payload:   mustJSON(wsErrorEnvelope{Error: errorFrom(err)}),
	})
}

// ExecuteAsAuthority implements transport.Transport by dispatching in
// process; the hub is the authority.
func (h *Hub) ExecuteAsAuthority(ctx context.Context, op string, args any, reply any) error {
	dispatcher := h.currentDispatcher()
	if dispatcher == nil {
		return apperrors.New(apperrors.CodeStateUnavailable, "authority is not ready")
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	if _, ok := transport.CallerFrom(ctx); !ok {
		ctx = transport.WithCaller(ctx, h.local)
	}
	result, err := dispatcher.Dispatch(ctx, op, raw)
	if err != nil {
		return err
	}
	return transport.Decode(result, reply)
}

// ExecuteForEveryone implements transport.Transport. Failed writes are
// logged and dropped.
func (h *Hub) ExecuteForEveryone(ctx context.Context, op string, payload any) error {
	return h.push(h.snapshot(""), op, payload)
}

// ExecuteOnPeer implements transport.Transport for every connection of
// peerID. A user with no open connection misses the push.
func (h *Hub) ExecuteOnPeer(ctx context.Context, peerID string, op string, payload any) error {
	if strings.TrimSpace(peerID) == "" {
		return apperrors.New(apperrors.CodeInvalidArgument, "peer id is required")
	}
	return h.push(h.snapshot(peerID), op, payload)
}

func (h *Hub) push(peers []*wsPeer, op string, payload any) error {
	if len(peers) == 0 {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	frame := wsFrame{Type: FramePush, Payload: mustJSON(pushPayload{Op: op, Payload: raw})}
	for _, peer := range peers {
		if err := peer.writeFrame(frame); err != nil {
			h.logf("storyframe: push failed op=%q err=%v", op, err)
		}
	}
	return nil
}

// snapshot returns the connections of userID, or all when userID is empty.
func (h *Hub) snapshot(userID string) []*wsPeer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*wsPeer
	for id, set := range h.peers {
		if userID != "" && id != userID {
			continue
		}
		for peer := range set {
			out = append(out, peer)
		}
	}
	return out
}

type wsPeer struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	encoder      *json.Encoder
	writeTimeout time.Duration
}

func newWSPeer(conn *websocket.Conn, writeTimeout time.Duration) *wsPeer {
	return &wsPeer{conn: conn, encoder: json.NewEncoder(conn), writeTimeout: writeTimeout}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encodeLocked(frame)
}

func (p *wsPeer) encodeLocked(frame wsFrame) error {
	if p.writeTimeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
	}
	return p.encoder.Encode(frame)
}
