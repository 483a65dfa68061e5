package state

import (
	"context"

	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/challenge"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/participant"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/roll"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/speaker"
	"github.com/louisbranch/storyframe/internal/services/storyframe/transport"
)

// Every facade method below returns a zero value, OutcomeSkipped or false
// before Initialize.

func (m *Manager) speakerManager() *speaker.Manager {
	m.bindMu.RLock()
	defer m.bindMu.RUnlock()
	return m.speakers
}

func (m *Manager) participantManager() *participant.Manager {
	m.bindMu.RLock()
	defer m.bindMu.RUnlock()
	return m.participants
}

func (m *Manager) rollTracker() *roll.Tracker {
	m.bindMu.RLock()
	defer m.bindMu.RUnlock()
	return m.rolls
}

func (m *Manager) challengeManager() *challenge.Manager {
	m.bindMu.RLock()
	defer m.bindMu.RUnlock()
	return m.challenges
}

// Speakers

// UpdateSpeakers replaces the speaker list.
func (m *Manager) UpdateSpeakers(ctx context.Context, speakers []document.Speaker) (document.Outcome, error) {
	sm := m.speakerManager()
	if sm == nil {
		return document.OutcomeSkipped, nil
	}
	return sm.UpdateSpeakers(ctx, speakers)
}

// SetActiveSpeaker puts speakerID on camera; "" clears it.
func (m *Manager) SetActiveSpeaker(ctx context.Context, speakerID string) (document.Outcome, error) {
	sm := m.speakerManager()
	if sm == nil {
		return document.OutcomeSkipped, nil
	}
	return sm.SetActiveSpeaker(ctx, speakerID)
}

// AddSpeaker adds a speaker, or returns the existing one for the same actor or image.
func (m *Manager) AddSpeaker(ctx context.Context, req speaker.AddRequest) (document.Speaker, document.Outcome, error) {
	sm := m.speakerManager()
	if sm == nil {
		return document.Speaker{}, document.OutcomeSkipped, nil
	}
	return sm.AddSpeaker(ctx, req)
}

// RemoveSpeaker drops a speaker and clears it from camera.
func (m *Manager) RemoveSpeaker(ctx context.Context, speakerID string) (document.Outcome, error) {
	sm := m.speakerManager()
	if sm == nil {
		return document.OutcomeSkipped, nil
	}
	return sm.RemoveSpeaker(ctx, speakerID)
}

// ToggleSpeakerNameVisibility flips whether players see the speaker's name.
func (m *Manager) ToggleSpeakerNameVisibility(ctx context.Context, speakerID string) (document.Outcome, error) {
	sm := m.speakerManager()
	if sm == nil {
		return document.OutcomeSkipped, nil
	}
	return sm.ToggleSpeakerNameVisibility(ctx, speakerID)
}

// ToggleSpeakerVisibility flips whether the speaker is hidden.
func (m *Manager) ToggleSpeakerVisibility(ctx context.Context, speakerID string) (document.Outcome, error) {
	sm := m.speakerManager()
	if sm == nil {
		return document.OutcomeSkipped, nil
	}
	return sm.ToggleSpeakerVisibility(ctx, speakerID)
}

// SetSpeakerAltImages replaces the speaker's alternate portraits.
func (m *Manager) SetSpeakerAltImages(ctx context.Context, speakerID string, images []string) (document.Outcome, error) {
	sm := m.speakerManager()
	if sm == nil {
		return document.OutcomeSkipped, nil
	}
	return sm.SetSpeakerAltImages(ctx, speakerID, images)
}

// ClearAllSpeakers removes every speaker.
func (m *Manager) ClearAllSpeakers(ctx context.Context) (document.Outcome, error) {
	sm := m.speakerManager()
	if sm == nil {
		return document.OutcomeSkipped, nil
	}
	return sm.ClearAllSpeakers(ctx)
}

// ResolveSpeaker never fails; before Initialize it uses the speaker's own fields.
func (m *Manager) ResolveSpeaker(ctx context.Context, s document.Speaker) speaker.Resolved {
	sm := m.speakerManager()
	if sm == nil {
		sm = speaker.NewManager(m, speaker.WithActors(m.actors))
	}
	return sm.ResolveSpeaker(ctx, s)
}

// Participants

// AddParticipant binds an actor to a user; a known actor returns its record.
func (m *Manager) AddParticipant(ctx context.Context, req participant.AddRequest) (document.Participant, document.Outcome, error) {
	pm := m.participantManager()
	if pm == nil {
		return document.Participant{}, document.OutcomeSkipped, nil
	}
	return pm.AddParticipant(ctx, req)
}

// RemoveParticipant drops a participant and its pending rolls.
func (m *Manager) RemoveParticipant(ctx context.Context, participantID string) (document.Outcome, error) {
	pm := m.participantManager()
	if pm == nil {
		return document.OutcomeSkipped, nil
	}
	return pm.RemoveParticipant(ctx, participantID)
}

// ClearAllParticipants drops every participant and pending roll.
func (m *Manager) ClearAllParticipants(ctx context.Context) (document.Outcome, error) {
	pm := m.participantManager()
	if pm == nil {
		return document.OutcomeSkipped, nil
	}
	return pm.ClearAllParticipants(ctx)
}

// ToggleParticipantNameVisibility flips whether players see the participant's name.
func (m *Manager) ToggleParticipantNameVisibility(ctx context.Context, participantID string) (document.Outcome, error) {
	pm := m.participantManager()
	if pm == nil {
		return document.OutcomeSkipped, nil
	}
	return pm.ToggleParticipantNameVisibility(ctx, participantID)
}

// ResolveParticipant never fails; before Initialize it uses fallbacks.
func (m *Manager) ResolveParticipant(ctx context.Context, p document.Participant) participant.Resolved {
	pm := m.participantManager()
	if pm == nil {
		pm = participant.NewManager(m, participant.WithActors(m.actors))
	}
	return pm.ResolveParticipant(ctx, p)
}

// Rolls

// AddPendingRoll records a pending roll without prompting anyone.
func (m *Manager) AddPendingRoll(ctx context.Context, req roll.Request) (document.PendingRoll, document.Outcome, error) {
	rt := m.rollTracker()
	if rt == nil {
		return document.PendingRoll{}, document.OutcomeSkipped, nil
	}
	return rt.AddPendingRoll(ctx, req)
}

// RemovePendingRoll cancels one pending roll.
func (m *Manager) RemovePendingRoll(ctx context.Context, rollID string) (document.Outcome, error) {
	rt := m.rollTracker()
	if rt == nil {
		return document.OutcomeSkipped, nil
	}
	return rt.RemovePendingRoll(ctx, rollID)
}

// ClearPendingRollsForParticipant cancels the participant's pending rolls.
func (m *Manager) ClearPendingRollsForParticipant(ctx context.Context, participantID string) (document.Outcome, error) {
	rt := m.rollTracker()
	if rt == nil {
		return document.OutcomeSkipped, nil
	}
	return rt.ClearPendingRollsForParticipant(ctx, participantID)
}

// ClearPendingRolls cancels every pending roll.
func (m *Manager) ClearPendingRolls(ctx context.Context) (document.Outcome, error) {
	rt := m.rollTracker()
	if rt == nil {
		return document.OutcomeSkipped, nil
	}
	return rt.ClearPendingRolls(ctx)
}

// AddRollResult appends to the bounded history and leaves pending rolls alone.
func (m *Manager) AddRollResult(ctx context.Context, result document.RollResult) (document.Outcome, error) {
	rt := m.rollTracker()
	if rt == nil {
		return document.OutcomeSkipped, nil
	}
	return rt.AddRollResult(ctx, result)
}

// ClearRollHistory empties the result history.
func (m *Manager) ClearRollHistory(ctx context.Context) (document.Outcome, error) {
	rt := m.rollTracker()
	if rt == nil {
		return document.OutcomeSkipped, nil
	}
	return rt.ClearRollHistory(ctx)
}

// SubmitRollResult records result and resolves its pending roll in one write.
func (m *Manager) SubmitRollResult(ctx context.Context, result document.RollResult) (document.Outcome, error) {
	rt := m.rollTracker()
	if rt == nil {
		return document.OutcomeSkipped, nil
	}
	return rt.SubmitRollResult(ctx, result)
}

// RequestRoll asks a participant's actor for a check. The pending roll is
// saved and broadcast, then a prompt goes to the participant's user only.
// A request for an actor no participant holds is rejected.
func (m *Manager) RequestRoll(ctx context.Context, req roll.Request) (document.PendingRoll, document.Outcome, error) {
	rt := m.rollTracker()
	if rt == nil {
		return document.PendingRoll{}, document.OutcomeSkipped, nil
	}
	doc, ok := m.Read()
	if !ok {
		return document.PendingRoll{}, document.OutcomeSkipped, nil
	}
	owner, found := participantForActor(doc, req.ActorID)
	if !found {
		return document.PendingRoll{}, document.OutcomeRejected, nil
	}
	if req.UserID == "" {
		req.UserID = owner.UserID
	}

	pending, outcome, err := rt.AddPendingRoll(ctx, req)
	if err != nil || outcome != document.OutcomeApplied {
		return pending, outcome, err
	}
	if t := m.boundTransport(); t != nil {
		if err := t.ExecuteOnPeer(ctx, pending.UserID, transport.OpPromptRoll, pending); err != nil {
			m.logf("storyframe: prompt roll failed user=%q roll=%q err=%v", pending.UserID, pending.ID, err)
		}
	}
	return pending, outcome, nil
}

func participantForActor(doc document.Document, actorID string) (document.Participant, bool) {
	for _, p := range doc.Participants {
		if p.ActorID == actorID {
			return p, true
		}
	}
	return document.Participant{}, false
}

// Challenges

// AddActiveChallenge activates a challenge; false means its name or id is taken.
func (m *Manager) AddActiveChallenge(ctx context.Context, req challenge.AddRequest) (document.Challenge, bool, error) {
	cm := m.challengeManager()
	if cm == nil {
		return document.Challenge{}, false, nil
	}
	return cm.AddActiveChallenge(ctx, req)
}

// RemoveActiveChallenge deactivates one challenge.
func (m *Manager) RemoveActiveChallenge(ctx context.Context, challengeID string) (document.Outcome, error) {
	cm := m.challengeManager()
	if cm == nil {
		return document.OutcomeSkipped, nil
	}
	return cm.RemoveActiveChallenge(ctx, challengeID)
}

// ClearAllChallenges deactivates every challenge.
func (m *Manager) ClearAllChallenges(ctx context.Context) (document.Outcome, error) {
	cm := m.challengeManager()
	if cm == nil {
		return document.OutcomeSkipped, nil
	}
	return cm.ClearAllChallenges(ctx)
}

// GetActiveChallenge reads one active challenge.
func (m *Manager) GetActiveChallenge(challengeID string) (document.Challenge, bool) {
	cm := m.challengeManager()
	if cm == nil {
		return document.Challenge{}, false
	}
	return cm.GetActiveChallenge(challengeID)
}

// SetActiveChallenge replaces the active challenges with one.
//
// Deprecated: use AddActiveChallenge.
func (m *Manager) SetActiveChallenge(ctx context.Context, req challenge.AddRequest) (document.Outcome, error) {
	cm := m.challengeManager()
	if cm == nil {
		return document.OutcomeSkipped, nil
	}
	return cm.SetActiveChallenge(ctx, req)
}

// ClearActiveChallenge empties the active challenges.
//
// Deprecated: use ClearAllChallenges.
func (m *Manager) ClearActiveChallenge(ctx context.Context) (document.Outcome, error) {
	cm := m.challengeManager()
	if cm == nil {
		return document.OutcomeSkipped, nil
	}
	return cm.ClearActiveChallenge(ctx)
}

// ActiveChallenge returns the first active challenge.
//
// Deprecated: use GetActiveChallenge.
func (m *Manager) ActiveChallenge() (document.Challenge, bool) {
	cm := m.challengeManager()
	if cm == nil {
		return document.Challenge{}, false
	}
	return cm.ActiveChallenge()
}
