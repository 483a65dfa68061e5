package document

import (
	"context"
	"fmt"
	"time"
)

// Outcome reports what a mutation did, so callers can tell a change apart
// from a known no-op.
type Outcome int

const (
	// OutcomeSkipped means no state was available to mutate.
	OutcomeSkipped Outcome = iota
	// OutcomeApplied means the document changed, was persisted and broadcast.
	OutcomeApplied
	// OutcomeExisting means a duplicate add returned the record already present.
	OutcomeExisting
	// OutcomeRejected means a known condition prevented the change.
	OutcomeRejected
)

var outcomeNames = map[Outcome]string{
	OutcomeSkipped:  "skipped",
	OutcomeApplied:  "applied",
	OutcomeExisting: "existing",
	OutcomeRejected: "rejected",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	for value, name := range outcomeNames {
		if name == string(text) {
			*o = value
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}

// Mutation edits doc in place. Only OutcomeApplied with a nil error is kept.
type Mutation func(doc *Document) (Outcome, error)

// Store is the owner-side seam managers mutate through.
type Store interface {
	// Read returns a snapshot of the owned document; false when none is loaded.
	Read() (Document, bool)
	// Update runs mutate against the owned document. An applied change is
	// persisted and broadcast before Update returns.
	Update(ctx context.Context, op string, mutate Mutation) (Outcome, error)
}

// Clock supplies the current time to managers.
type Clock func() time.Time

// Millis returns t as epoch milliseconds, the unit persisted timestamps use.
func Millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// NoticeLevel classifies a user-visible notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a message meant for the GM's screen.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// Notifier surfaces notices; implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, notice Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, notice Notice)

// Notify implements Notifier.
func (fn NotifierFunc) Notify(ctx context.Context, notice Notice) {
	if fn != nil {
		fn(ctx, notice)
	}
}

// Actor is the read-only view of a host actor.
type Actor struct {
	ID          string
	Name        string
	Image       string
	OwnerUserID string
}

// ActorLookup dereferences actor ids. A deleted actor returns an error.
type ActorLookup interface {
	Actor(ctx context.Context, id string) (Actor, error)
}
