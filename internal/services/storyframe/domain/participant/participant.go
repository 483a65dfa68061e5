// Package participant manages the player characters that can be asked for
// checks, each bound to the user who rolls for it.
package participant

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/storyframe/internal/platform/errors"
	"github.com/louisbranch/storyframe/internal/platform/id"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
)

// UnknownName is shown when a participant's actor cannot be resolved.
const UnknownName = "Unknown"

// AddRequest binds an actor to the user who controls it.
type AddRequest struct {
	ActorID      string `json:"actorId"`
	UserID       string `json:"userId"`
	IsNameHidden bool   `json:"isNameHidden,omitempty"`
}

// Resolved is the display form of a participant.
type Resolved struct {
	Image string `json:"img"`
	Name  string `json:"name"`
}

// Manager mutates the participant list through a document.Store.
type Manager struct {
	store  document.Store
	newID  id.Generator
	actors document.ActorLookup
}

// Option configures a Manager.
type Option func(*Manager)

// WithIDGenerator overrides how participant ids are minted.
func WithIDGenerator(gen id.Generator) Option {
	return func(m *Manager) { m.newID = gen }
}

// WithActors sets the actor directory used by ResolveParticipant.
func WithActors(actors document.ActorLookup) Option {
	return func(m *Manager) { m.actors = actors }
}

// NewManager returns a Manager bound to store.
func NewManager(store document.Store, opts ...Option) *Manager {
	m := &Manager{store: store, newID: id.NewID}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Participants returns the current participants.
func (m *Manager) Participants() []document.Participant {
	doc, ok := m.store.Read()
	if !ok {
		return nil
	}
	return doc.Participants
}

// AddParticipant appends a participant unless its actor is already present,
// in which case the existing record is returned with OutcomeExisting.
func (m *Manager) AddParticipant(ctx context.Context, req AddRequest) (document.Participant, document.Outcome, error) {
	actorID := strings.TrimSpace(req.ActorID)
	userID := strings.TrimSpace(req.UserID)
	if actorID == "" {
		return document.Participant{}, document.OutcomeRejected, apperrors.New(apperrors.CodeParticipantActorRequired, "participant actor is required")
	}
	if userID == "" {
		return document.Participant{}, document.OutcomeRejected, apperrors.New(apperrors.CodeParticipantUserRequired, "participant user is required")
	}

	var result document.Participant
	outcome, err := m.store.Update(ctx, "addParticipant", func(doc *document.Document) (document.Outcome, error) {
		for _, p := range doc.Participants {
			if p.ActorID == actorID {
				result = p
				return document.OutcomeExisting, nil
			}
		}
		newID, err := m.newID()
		if err != nil {
			return document.OutcomeSkipped, fmt.Errorf("generate participant id: %w", err)
		}
		result = document.Participant{
			ID:           newID,
			ActorID:      actorID,
			UserID:       userID,
			IsNameHidden: req.IsNameHidden,
		}
		doc.Participants = append(doc.Participants, result)
		return document.OutcomeApplied, nil
	})
	if err != nil || outcome == document.OutcomeSkipped {
		return document.Participant{}, outcome, err
	}
	return result, outcome, nil
}

// RemoveParticipant drops a participant and, in the same write, every pending
// roll addressed to its actor.
func (m *Manager) RemoveParticipant(ctx context.Context, participantID string) (document.Outcome, error) {
	return m.store.Update(ctx, "removeParticipant", func(doc *document.Document) (document.Outcome, error) {
		target, ok := doc.Participant(participantID)
		if !ok {
			return document.OutcomeRejected, nil
		}
		kept := make([]document.Participant, 0, len(doc.Participants))
		for _, p := range doc.Participants {
			if p.ID != participantID {
				kept = append(kept, p)
			}
		}
		doc.Participants = kept
		doc.PendingRolls = DropRollsForActor(doc.PendingRolls, target.ActorID)
		return document.OutcomeApplied, nil
	})
}

// ClearAllParticipants removes every participant along with all pending rolls.
func (m *Manager) ClearAllParticipants(ctx context.Context) (document.Outcome, error) {
	return m.store.Update(ctx, "clearAllParticipants", func(doc *document.Document) (document.Outcome, error) {
		doc.Participants = []document.Participant{}
		doc.PendingRolls = []document.PendingRoll{}
		return document.OutcomeApplied, nil
	})
}

// ToggleParticipantNameVisibility flips whether other players see the name.
func (m *Manager) ToggleParticipantNameVisibility(ctx context.Context, participantID string) (document.Outcome, error) {
	return m.store.Update(ctx, "toggleParticipantNameVisibility", func(doc *document.Document) (document.Outcome, error) {
		for i := range doc.Participants {
			if doc.Participants[i].ID == participantID {
				doc.Participants[i].IsNameHidden = !doc.Participants[i].IsNameHidden
				return document.OutcomeApplied, nil
			}
		}
		return document.OutcomeRejected, nil
	})
}

// ResolveParticipant returns the actor's portrait and name, falling back to
// the placeholder when the actor is gone.
func (m *Manager) ResolveParticipant(ctx context.Context, p document.Participant) Resolved {
	resolved := Resolved{Image: placeholderImage, Name: UnknownName}
	if m.actors == nil || p.ActorID == "" {
		return resolved
	}
	actor, err := m.actors.Actor(ctx, p.ActorID)
	if err != nil {
		return resolved
	}
	if actor.Image != "" {
		resolved.Image = actor.Image
	}
	if actor.Name != "" {
		resolved.Name = actor.Name
	}
	return resolved
}

const placeholderImage = "icons/svg/mystery-man.svg"

// DropRollsForActor returns rolls without those addressed to actorID.
func DropRollsForActor(rolls []document.PendingRoll, actorID string) []document.PendingRoll {
	kept := make([]document.PendingRoll, 0, len(rolls))
	for _, r := range rolls {
		if r.ActorID != actorID {
			kept = append(kept, r)
		}
	}
	return kept
}
