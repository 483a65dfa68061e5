package transport

import "context"

// Role is the authority a peer holds in the session.
type Role string

const (
	RoleGM     Role = "gm"
	RolePlayer Role = "player"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleGM || r == RolePlayer
}

// Caller identifies the peer a request came from.
type Caller struct {
	UserID string
	Role   Role
}

// IsGM reports whether the caller may run every operation.
func (c Caller) IsGM() bool {
	return c.Role == RoleGM
}

type callerKey struct{}

// WithCaller attaches the requesting peer to ctx.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the requesting peer, if one is attached.
func CallerFrom(ctx context.Context) (Caller, bool) {
	if ctx == nil {
		return Caller{}, false
	}
	caller, ok := ctx.Value(callerKey{}).(Caller)
	return caller, ok
}
