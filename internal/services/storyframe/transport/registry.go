package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	apperrors "github.com/louisbranch/storyframe/internal/platform/errors"
)

// Handler runs one authority operation.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Dispatcher runs authority operations by name.
type Dispatcher interface {
	Dispatch(ctx context.Context, op string, args json.RawMessage) (any, error)
}

// Registry maps operation names to handlers.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register binds op to handler. Registering an op twice panics.
func (r *Registry) Register(op string, handler Handler) {
	if _, exists := r.handlers[op]; exists {
		panic(fmt.Sprintf("transport: op %q registered twice", op))
	}
	r.handlers[op] = handler
}

// Ops lists the registered operations in sorted order.
func (r *Registry) Ops() []string {
	ops := make([]string, 0, len(r.handlers))
	for op := range r.handlers {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Dispatch implements Dispatcher.
func (r *Registry) Dispatch(ctx context.Context, op string, args json.RawMessage) (any, error) {
	handler, ok := r.handlers[op]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeUnknownOperation, "unknown operation", map[string]string{"op": op})
	}
	return handler(ctx, args)
}

// DecodeArgs unmarshals args into target. Empty args leave target untouched.
func DecodeArgs(args json.RawMessage, target any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, target); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid arguments", err)
	}
	return nil
}
