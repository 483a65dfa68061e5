package challenge

import (
	"context"
	"strings"

	apperrors "github.com/louisbranch/storyframe/internal/platform/errors"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
)

// SetActiveChallenge replaces all active challenges with a single one.
//
// Deprecated: use AddActiveChallenge. Kept for clients that still speak the
// single-challenge protocol.
func (m *Manager) SetActiveChallenge(ctx context.Context, req AddRequest) (document.Outcome, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return document.OutcomeRejected, apperrors.New(apperrors.CodeChallengeNameRequired, "challenge name is required")
	}
	return m.store.Update(ctx, "setActiveChallenge", func(doc *document.Document) (document.Outcome, error) {
		challenge, err := m.build(req, name)
		if err != nil {
			return document.OutcomeSkipped, err
		}
		doc.ActiveChallenges = []document.Challenge{challenge}
		return document.OutcomeApplied, nil
	})
}

// ClearActiveChallenge empties the active challenges.
//
// Deprecated: use ClearAllChallenges.
func (m *Manager) ClearActiveChallenge(ctx context.Context) (document.Outcome, error) {
	return m.ClearAllChallenges(ctx)
}

// ActiveChallenge returns the first active challenge.
//
// Deprecated: use ActiveChallenges or GetActiveChallenge.
func (m *Manager) ActiveChallenge() (document.Challenge, bool) {
	active := m.ActiveChallenges()
	if len(active) == 0 {
		return document.Challenge{}, false
	}
	return active[0].Clone(), true
}
