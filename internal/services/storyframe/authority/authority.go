// Package authority maps peer operations onto the state manager and enforces
// who may call them.
package authority

import (
	"context"
	"encoding/json"
	"log"

	apperrors "github.com/louisbranch/storyframe/internal/platform/errors"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/challenge"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/participant"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/roll"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/speaker"
	"github.com/louisbranch/storyframe/internal/services/storyframe/state"
	"github.com/louisbranch/storyframe/internal/services/storyframe/transport"
)

// OutcomeResult is the reply of operations that only report an outcome.
type OutcomeResult struct {
	Outcome document.Outcome `json:"outcome"`
}

// SpeakerResult is the reply of addSpeaker.
type SpeakerResult struct {
	Speaker *document.Speaker `json:"speaker"`
	Outcome document.Outcome  `json:"outcome"`
}

// ParticipantResult is the reply of addParticipant.
type ParticipantResult struct {
	Participant *document.Participant `json:"participant"`
	Outcome     document.Outcome      `json:"outcome"`
}

// RollResult is the reply of requestRoll and addPendingRoll.
type RollResult struct {
	Roll    *document.PendingRoll `json:"roll"`
	Outcome document.Outcome      `json:"outcome"`
}

// ChallengeResult is the reply of addChallenge.
type ChallengeResult struct {
	Challenge *document.Challenge `json:"challenge"`
	Added     bool                `json:"added"`
}

type speakerIDArgs struct {
	SpeakerID string `json:"speakerId"`
}

type speakersArgs struct {
	Speakers []document.Speaker `json:"speakers"`
}

type altImagesArgs struct {
	SpeakerID string   `json:"speakerId"`
	Images    []string `json:"images"`
}

type journalArgs struct {
	JournalID string `json:"journalId"`
}

type participantIDArgs struct {
	ParticipantID string `json:"participantId"`
}

type rollIDArgs struct {
	RollID string `json:"rollId"`
}

type challengeIDArgs struct {
	ChallengeID string `json:"challengeId"`
}

type sceneArgs struct {
	SceneID string `json:"sceneId"`
}

// NewRegistry returns a registry with every authority operation bound to m.
func NewRegistry(m *state.Manager) *transport.Registry {
	r := transport.NewRegistry()

	r.Register(transport.OpGetState, func(ctx context.Context, _ json.RawMessage) (any, error) {
		doc, ok := m.State()
		if !ok {
			return nil, nil
		}
		return doc, nil
	})

	gm(r, transport.OpUpdateSpeakers, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args speakersArgs
		if err := transport.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return outcome(m.UpdateSpeakers(ctx, args.Speakers))
	})
	gm(r, transport.OpSetActiveSpeaker, withSpeakerID(m.SetActiveSpeaker))
	gm(r, transport.OpAddSpeaker, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args speaker.AddRequest
		if err := transport.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		s, out, err := m.AddSpeaker(ctx, args)
		if err != nil {
			return nil, stateError(err)
		}
		result := SpeakerResult{Outcome: out}
		if out == document.OutcomeApplied || out == document.OutcomeExisting {
			result.Speaker = &s
		}
		return result, nil
	})
	gm(r, transport.OpRemoveSpeaker, withSpeakerID(m.RemoveSpeaker))
	gm(r, transport.OpToggleSpeakerNameVisibility, withSpeakerID(m.ToggleSpeakerNameVisibility))
	gm(r, transport.OpToggleSpeakerVisibility, withSpeakerID(m.ToggleSpeakerVisibility))
	gm(r, transport.OpSetSpeakerAltImages, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args altImagesArgs
		if err := transport.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return outcome(m.SetSpeakerAltImages(ctx, args.SpeakerID, args.Images))
	})
	gm(r, transport.OpClearAllSpeakers, noArgs(m.ClearAllSpeakers))

	gm(r, transport.OpSetActiveJournal, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args journalArgs
		if err := transport.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return outcome(m.SetActiveJournal(ctx, args.JournalID))
	})

	gm(r, transport.OpAddParticipant, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args participant.AddRequest
		if err := transport.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		p, out, err := m.AddParticipant(ctx, args)
		if err != nil {
			return nil, stateError(err)
		}
		result := ParticipantResult{Outcome: out}
		if out == document.OutcomeApplied || out == document.OutcomeExisting {
			result.Participant = &p
		}
		return result, nil
	})
	gm(r, transport.OpRemoveParticipant, withParticipantID(m.RemoveParticipant))
	gm(r, transport.OpToggleParticipantNameVisibility, withParticipantID(m.ToggleParticipantNameVisibility))
	gm(r, transport.OpClearAllParticipants, noArgs(m.ClearAllParticipants))

	gm(r, transport.OpRequestRoll, withRollRequest(m.RequestRoll))
	gm(r, transport.OpAddPendingRoll, withRollRequest(m.AddPendingRoll))
	gm(r, transport.OpRemovePendingRoll, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args rollIDArgs
		if err := transport.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return outcome(m.RemovePendingRoll(ctx, args.RollID))
	})
	gm(r, transport.OpClearPendingRollsForParticipant, withParticipantID(m.ClearPendingRollsForParticipant))
	gm(r, transport.OpClearPendingRolls, noArgs(m.ClearPendingRolls))
	gm(r, transport.OpClearRollHistory, noArgs(m.ClearRollHistory))
	r.Register(transport.OpSubmitRollResult, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args document.RollResult
		if err := transport.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		if err := canSubmit(ctx, m, args.RequestID); err != nil {
			return nil, err
		}
		return outcome(m.SubmitRollResult(ctx, args))
	})

	gm(r, transport.OpAddChallenge, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args challenge.AddRequest
		if err := transport.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		c, added, err := m.AddActiveChallenge(ctx, args)
		if err != nil {
			return nil, stateError(err)
		}
		result := ChallengeResult{Added: added}
		if added {
			result.Challenge = &c
		}
		return result, nil
	})
	gm(r, transport.OpRemoveChallenge, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args challengeIDArgs
		if err := transport.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return outcome(m.RemoveActiveChallenge(ctx, args.ChallengeID))
	})
	gm(r, transport.OpClearAllChallenges, noArgs(m.ClearAllChallenges))
	gm(r, transport.OpSetActiveChallenge, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args challenge.AddRequest
		if err := transport.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return outcome(m.SetActiveChallenge(ctx, args))
	})
	gm(r, transport.OpClearActiveChallenge, noArgs(m.ClearActiveChallenge))

	gm(r, transport.OpChangeScene, func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args sceneArgs
		if err := transport.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		if args.SceneID == "" {
			return nil, apperrors.New(apperrors.CodeInvalidArgument, "sceneId is required")
		}
		return outcome(m.ChangeScene(ctx, args.SceneID))
	})

	return r
}

// gm registers handler behind a GM role check.
func gm(r *transport.Registry, op string, handler transport.Handler) {
	r.Register(op, func(ctx context.Context, raw json.RawMessage) (any, error) {
		caller, ok := transport.CallerFrom(ctx)
		if !ok || !caller.IsGM() {
			log.Printf("storyframe: forbidden op=%q user=%q role=%q", op, caller.UserID, caller.Role)
			return nil, apperrors.WithMetadata(apperrors.CodePeerForbidden, "operation requires the gm role", map[string]string{"op": op})
		}
		return handler(ctx, raw)
	})
}

// canSubmit lets the GM submit any result and a player only results for a
// pending roll addressed to them.
func canSubmit(ctx context.Context, m *state.Manager, requestID string) error {
	caller, ok := transport.CallerFrom(ctx)
	if !ok {
		return apperrors.New(apperrors.CodePeerForbidden, "caller is required")
	}
	if caller.IsGM() {
		return nil
	}
	doc, ok := m.State()
	if !ok {
		return apperrors.New(apperrors.CodeStateUnavailable, "no scene state is loaded")
	}
	pending, ok := doc.PendingRoll(requestID)
	if !ok || pending.UserID != caller.UserID {
		log.Printf("storyframe: forbidden roll submission user=%q roll=%q", caller.UserID, requestID)
		return apperrors.WithMetadata(apperrors.CodePeerForbidden, "roll is not addressed to caller", map[string]string{"roll_id": requestID})
	}
	return nil
}

func outcome(out document.Outcome, err error) (any, error) {
	if err != nil {
		return nil, stateError(err)
	}
	return OutcomeResult{Outcome: out}, nil
}

// stateError keeps validation errors as they are and classifies the rest as
// the state being unavailable.
func stateError(err error) error {
	if apperrors.CodeOf(err) != apperrors.CodeUnknown {
		return err
	}
	return apperrors.Wrap(apperrors.CodeStateUnavailable, "state write failed", err)
}

func noArgs(fn func(context.Context) (document.Outcome, error)) transport.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		return outcome(fn(ctx))
	}
}

func withSpeakerID(fn func(context.Context, string) (document.Outcome, error)) transport.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args speakerIDArgs
		if err := transport.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return outcome(fn(ctx, args.SpeakerID))
	}
}

func withParticipantID(fn func(context.Context, string) (document.Outcome, error)) transport.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args participantIDArgs
		if err := transport.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return outcome(fn(ctx, args.ParticipantID))
	}
}

func withRollRequest(fn func(context.Context, roll.Request) (document.PendingRoll, document.Outcome, error)) transport.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args roll.Request
		if err := transport.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		pending, out, err := fn(ctx, args)
		if err != nil {
			return nil, stateError(err)
		}
		result := RollResult{Outcome: out}
		if out == document.OutcomeApplied {
			result.Roll = &pending
		}
		return result, nil
	}
}
