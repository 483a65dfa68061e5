// Package challenge manages the named check bundles active in a scene.
//
// Several challenges can be active at once. Names are unique among them under
// Unicode case folding; a removed challenge frees its name.
package challenge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	apperrors "github.com/louisbranch/storyframe/internal/platform/errors"
	"github.com/louisbranch/storyframe/internal/platform/id"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
)

// AddRequest describes a challenge to activate. An empty ID gets one minted.
type AddRequest struct {
	ID      string                     `json:"id,omitempty"`
	Name    string                     `json:"name"`
	Image   string                     `json:"image,omitempty"`
	Options []document.ChallengeOption `json:"options"`
}

// Manager mutates active challenges through a document.Store.
type Manager struct {
	store document.Store
	newID id.Generator
	now   document.Clock
}

// Option configures a Manager.
type Option func(*Manager)

// WithIDGenerator overrides how challenge ids are minted.
func WithIDGenerator(gen id.Generator) Option {
	return func(m *Manager) { m.newID = gen }
}

// WithClock overrides the createdAt source.
func WithClock(now document.Clock) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a Manager bound to store.
func NewManager(store document.Store, opts ...Option) *Manager {
	m := &Manager{store: store, newID: id.NewID, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ActiveChallenges returns every active challenge, oldest first.
func (m *Manager) ActiveChallenges() []document.Challenge {
	doc, ok := m.store.Read()
	if !ok {
		return nil
	}
	return doc.ActiveChallenges
}

// GetActiveChallenge returns the active challenge with challengeID.
func (m *Manager) GetActiveChallenge(challengeID string) (document.Challenge, bool) {
	doc, ok := m.store.Read()
	if !ok {
		return document.Challenge{}, false
	}
	return doc.Challenge(challengeID)
}

// AddActiveChallenge activates a challenge. It reports false, without
// mutating anything, when an active challenge already uses the name or the
// requested id.
func (m *Manager) AddActiveChallenge(ctx context.Context, req AddRequest) (document.Challenge, bool, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return document.Challenge{}, false, apperrors.New(apperrors.CodeChallengeNameRequired, "challenge name is required")
	}

	var added document.Challenge
	outcome, err := m.store.Update(ctx, "addChallenge", func(doc *document.Document) (document.Outcome, error) {
		if NameTaken(doc.ActiveChallenges, name) {
			return document.OutcomeRejected, nil
		}
		if requested := strings.TrimSpace(req.ID); requested != "" {
			if _, taken := doc.Challenge(requested); taken {
				return document.OutcomeRejected, nil
			}
		}
		challenge, err := m.build(req, name)
		if err != nil {
			return document.OutcomeSkipped, err
		}
		added = challenge
		doc.ActiveChallenges = append(doc.ActiveChallenges, challenge)
		return document.OutcomeApplied, nil
	})
	if err != nil || outcome != document.OutcomeApplied {
		return document.Challenge{}, false, err
	}
	return added.Clone(), true, nil
}

func (m *Manager) build(req AddRequest, name string) (document.Challenge, error) {
	challengeID := strings.TrimSpace(req.ID)
	if challengeID == "" {
		newID, err := m.newID()
		if err != nil {
			return document.Challenge{}, fmt.Errorf("generate challenge id: %w", err)
		}
		challengeID = newID
	}
	challenge := document.Challenge{
		ID:        challengeID,
		Name:      name,
		Image:     strings.TrimSpace(req.Image),
		Options:   req.Options,
		CreatedAt: document.Millis(m.now()),
	}
	challenge = challenge.Clone()
	doc := document.Document{ActiveChallenges: []document.Challenge{challenge}}
	doc.Normalize()
	return doc.ActiveChallenges[0], nil
}

// RemoveActiveChallenge deactivates one challenge.
func (m *Manager) RemoveActiveChallenge(ctx context.Context, challengeID string) (document.Outcome, error) {
	return m.store.Update(ctx, "removeChallenge", func(doc *document.Document) (document.Outcome, error) {
		kept := make([]document.Challenge, 0, len(doc.ActiveChallenges))
		for _, c := range doc.ActiveChallenges {
			if c.ID != challengeID {
				kept = append(kept, c)
			}
		}
		if len(kept) == len(doc.ActiveChallenges) {
			return document.OutcomeRejected, nil
		}
		doc.ActiveChallenges = kept
		return document.OutcomeApplied, nil
	})
}

// ClearAllChallenges deactivates every challenge.
func (m *Manager) ClearAllChallenges(ctx context.Context) (document.Outcome, error) {
	return m.store.Update(ctx, "clearAllChallenges", func(doc *document.Document) (document.Outcome, error) {
		doc.ActiveChallenges = []document.Challenge{}
		return document.OutcomeApplied, nil
	})
}

// NameTaken reports whether name case-folds to an active challenge's name.
func NameTaken(active []document.Challenge, name string) bool {
	folded := fold(name)
	for _, c := range active {
		if fold(c.Name) == folded {
			return true
		}
	}
	return false
}

func fold(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
