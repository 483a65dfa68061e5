package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/louisbranch/storyframe/internal/platform/timeouts"
	"github.com/louisbranch/storyframe/internal/services/storyframe/transport"
)

// ErrNotAuthority is returned by follower pushes; only the authority pushes.
var ErrNotAuthority = errors.New("only the authority can push to peers")

// ErrClosed is returned for requests on a closed connection.
var ErrClosed = errors.New("connection closed")

// Client is a follower's connection to the authority hub.
type Client struct {
	conn           *websocket.Conn
	onPush         transport.PushFunc
	requestTimeout time.Duration
	logf           func(format string, args ...any)

	writeMu sync.Mutex
	encoder *json.Encoder

	mu      sync.Mutex
	pending map[string]chan wsFrame
	err     error
	done    chan struct{}
}

var _ transport.Transport = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPushHandler receives every push from the authority. It runs on the
// read loop and must not wait on requests to the authority.
func WithPushHandler(fn transport.PushFunc) ClientOption {
	return func(c *Client) { c.onPush = fn }
}

// WithRequestTimeout bounds requests whose context has no deadline.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.requestTimeout = timeout }
}

// WithClientLogf overrides the client logger.
func WithClientLogf(logf func(format string, args ...any)) ClientOption {
	return func(c *Client) { c.logf = logf }
}

// Dial connects to the hub at rawURL (ws:// or wss://) with a join token.
func Dial(ctx context.Context, rawURL string, token string, opts ...ClientOption) (*Client, error) {
	origin := "http" + strings.TrimPrefix(rawURL, "ws")
	cfg, err := websocket.NewConfig(rawURL, origin)
	if err != nil {
		return nil, fmt.Errorf("websocket config: %w", err)
	}
	cfg.Header = make(http.Header)
	cfg.Header.Set("Authorization", "Bearer "+token)
	conn, err := cfg.DialContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial authority %s: %w", rawURL, err)
	}

	c := &Client{
		conn:           conn,
		requestTimeout: timeouts.AuthorityRequest,
		logf:           log.Printf,
		encoder:        json.NewEncoder(conn),
		pending:        make(map[string]chan wsFrame),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c, nil
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ExecuteAsAuthority implements transport.Transport.
func (c *Client) ExecuteAsAuthority(ctx context.Context, op string, args any, reply any) error {
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok && c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	requestID := uuid.NewString()
	ch := make(chan wsFrame, 1)
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[requestID] = ch
	c.mu.Unlock()
	defer c.forget(requestID)

	frame := wsFrame{
		Type:      FrameExecute,
		RequestID: requestID,
		Payload:   mustJSON(executePayload{Op: op, Args: rawArgs}),
	}
	if err := c.write(frame); err != nil {
		return fmt.Errorf("send %s: %w", op, err)
	}

	select {
	case response := <-ch:
		return decodeResponse(response, reply)
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

// ExecuteForEveryone implements transport.Transport. Followers never push.
func (c *Client) ExecuteForEveryone(context.Context, string, any) error {
	return ErrNotAuthority
}

// ExecuteOnPeer implements transport.Transport. Followers never push.
func (c *Client) ExecuteOnPeer(context.Context, string, string, any) error {
	return ErrNotAuthority
}

func decodeResponse(frame wsFrame, reply any) error {
	switch frame.Type {
	case FrameResult:
		var payload resultPayload
		if err := json.Unmarshal(frame.Payload, &payload); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		return transport.Decode(payload.Result, reply)
	case FrameError:
		var envelope wsErrorEnvelope
		if err := json.Unmarshal(frame.Payload, &envelope); err != nil {
			return fmt.Errorf("decode error: %w", err)
		}
		return envelope.Error.toError()
	default:
		return fmt.Errorf("unexpected frame type %q", frame.Type)
	}
}

func (c *Client) write(frame wsFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(timeouts.PeerWrite))
	return c.encoder.Encode(frame)
}

func (c *Client) forget(requestID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, requestID)
}

func (c *Client) readLoop() {
	decoder := json.NewDecoder(c.conn)
	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		switch frame.Type {
		case FramePush:
			c.handlePush(frame)
		case FrameResult, FrameError:
			if frame.RequestID == "" {
				c.logf("storyframe: authority error frame=%s", string(frame.Payload))
				continue
			}
			c.deliver(frame)
		default:
			c.logf("storyframe: unexpected frame type=%q", frame.Type)
		}
	}
}

func (c *Client) handlePush(frame wsFrame) {
	var payload pushPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		c.logf("storyframe: invalid push err=%v", err)
		return
	}
	if c.onPush != nil {
		c.onPush(context.Background(), payload.Op, payload.Payload)
	}
}

func (c *Client) deliver(frame wsFrame) {
	c.mu.Lock()
	ch, ok := c.pending[frame.RequestID]
	c.mu.Unlock()
	if !ok {
		c.logf("storyframe: response for unknown request=%q", frame.RequestID)
		return
	}
	select {
	case ch <- frame:
	default:
	}
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	c.err = err
	close(c.done)
}
