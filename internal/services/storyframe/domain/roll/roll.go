// Package roll tracks checks requested of participants and the bounded
// history of their results.
package roll

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/storyframe/internal/platform/errors"
	"github.com/louisbranch/storyframe/internal/platform/id"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/participant"
)

// Request asks one actor for a check.
type Request struct {
	ActorID       string             `json:"actorId"`
	UserID        string             `json:"userId"`
	SkillSlug     string             `json:"skillSlug"`
	CheckType     document.CheckType `json:"checkType"`
	ActionSlug    string             `json:"actionSlug,omitempty"`
	ActionVariant string             `json:"actionVariant,omitempty"`
	DC            *int               `json:"dc"`
	IsSecretRoll  bool               `json:"isSecretRoll,omitempty"`
	BatchGroupID  string             `json:"batchGroupId,omitempty"`
	AllowOnlyOne  bool               `json:"allowOnlyOne,omitempty"`
}

// Tracker mutates pending rolls and roll history through a document.Store.
type Tracker struct {
	store document.Store
	newID id.Generator
	now   document.Clock
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithIDGenerator overrides how pending roll ids are minted.
func WithIDGenerator(gen id.Generator) Option {
	return func(t *Tracker) { t.newID = gen }
}

// WithClock overrides the timestamp source.
func WithClock(now document.Clock) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker returns a Tracker bound to store.
func NewTracker(store document.Store, opts ...Option) *Tracker {
	t := &Tracker{store: store, newID: id.NewID, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// PendingRolls returns the outstanding rolls in request order.
func (t *Tracker) PendingRolls() []document.PendingRoll {
	doc, ok := t.store.Read()
	if !ok {
		return nil
	}
	return doc.PendingRolls
}

// RollHistory returns the recorded results, oldest first.
func (t *Tracker) RollHistory() []document.RollResult {
	doc, ok := t.store.Read()
	if !ok {
		return nil
	}
	return doc.RollHistory
}

// Validate normalizes req and checks its required fields.
func (req *Request) Validate() error {
	req.ActorID = strings.TrimSpace(req.ActorID)
	req.SkillSlug = strings.TrimSpace(req.SkillSlug)
	if req.ActorID == "" {
		return apperrors.New(apperrors.CodeParticipantActorRequired, "roll actor is required")
	}
	if req.SkillSlug == "" {
		return apperrors.New(apperrors.CodeRollSkillRequired, "roll skill is required")
	}
	if req.CheckType == "" {
		req.CheckType = document.CheckTypeSkill
	}
	if !req.CheckType.Valid() {
		return apperrors.WithMetadata(apperrors.CodeRollInvalidCheckType, "check type must be skill or save",
			map[string]string{"checkType": string(req.CheckType)})
	}
	return nil
}

// AddPendingRoll records a new outstanding roll. Rolls are not deduplicated;
// the same actor may owe several checks at once.
func (t *Tracker) AddPendingRoll(ctx context.Context, req Request) (document.PendingRoll, document.Outcome, error) {
	if err := req.Validate(); err != nil {
		return document.PendingRoll{}, document.OutcomeRejected, err
	}
	var result document.PendingRoll
	outcome, err := t.store.Update(ctx, "addPendingRoll", func(doc *document.Document) (document.Outcome, error) {
		pending, err := t.newPendingRoll(req)
		if err != nil {
			return document.OutcomeSkipped, err
		}
		result = pending
		doc.PendingRolls = append(doc.PendingRolls, pending)
		return document.OutcomeApplied, nil
	})
	if err != nil || outcome != document.OutcomeApplied {
		return document.PendingRoll{}, outcome, err
	}
	return result.Clone(), outcome, nil
}

func (t *Tracker) newPendingRoll(req Request) (document.PendingRoll, error) {
	newID, err := t.newID()
	if err != nil {
		return document.PendingRoll{}, fmt.Errorf("generate roll id: %w", err)
	}
	var dc *int
	if req.DC != nil {
		value := *req.DC
		dc = &value
	}
	return document.PendingRoll{
		ID:            newID,
		ActorID:       req.ActorID,
		UserID:        strings.TrimSpace(req.UserID),
		SkillSlug:     req.SkillSlug,
		CheckType:     req.CheckType,
		ActionSlug:    req.ActionSlug,
		ActionVariant: req.ActionVariant,
		DC:            dc,
		IsSecretRoll:  req.IsSecretRoll,
		Timestamp:     document.Millis(t.now()),
		BatchGroupID:  req.BatchGroupID,
		AllowOnlyOne:  req.AllowOnlyOne,
	}, nil
}

// RemovePendingRoll cancels one roll. It only drops the bookkeeping record.
func (t *Tracker) RemovePendingRoll(ctx context.Context, rollID string) (document.Outcome, error) {
	return t.store.Update(ctx, "removePendingRoll", func(doc *document.Document) (document.Outcome, error) {
		next, removed := withoutRoll(doc.PendingRolls, rollID)
		if !removed {
			return document.OutcomeRejected, nil
		}
		doc.PendingRolls = next
		return document.OutcomeApplied, nil
	})
}

// ClearPendingRollsForParticipant drops every roll addressed to the
// participant's actor.
func (t *Tracker) ClearPendingRollsForParticipant(ctx context.Context, participantID string) (document.Outcome, error) {
	return t.store.Update(ctx, "clearPendingRollsForParticipant", func(doc *document.Document) (document.Outcome, error) {
		p, ok := doc.Participant(participantID)
		if !ok {
			return document.OutcomeRejected, nil
		}
		doc.PendingRolls = participant.DropRollsForActor(doc.PendingRolls, p.ActorID)
		return document.OutcomeApplied, nil
	})
}

// ClearPendingRolls drops every outstanding roll, as on a scene change.
func (t *Tracker) ClearPendingRolls(ctx context.Context) (document.Outcome, error) {
	return t.store.Update(ctx, "clearPendingRolls", func(doc *document.Document) (document.Outcome, error) {
		ClearPending(doc)
		return document.OutcomeApplied, nil
	})
}

// AddRollResult appends a result to the history without touching pending rolls.
func (t *Tracker) AddRollResult(ctx context.Context, result document.RollResult) (document.Outcome, error) {
	result = t.stamp(result)
	return t.store.Update(ctx, "addRollResult", func(doc *document.Document) (document.Outcome, error) {
		doc.RollHistory = AppendResult(doc.RollHistory, result)
		return document.OutcomeApplied, nil
	})
}

// SubmitRollResult records a result and resolves its pending roll in one
// write. The result is kept even when no pending roll matches. A resolved
// roll marked allowOnlyOne also retires the actor's other rolls in its batch.
func (t *Tracker) SubmitRollResult(ctx context.Context, result document.RollResult) (document.Outcome, error) {
	result = t.stamp(result)
	return t.store.Update(ctx, "submitRollResult", func(doc *document.Document) (document.Outcome, error) {
		Submit(doc, result)
		return document.OutcomeApplied, nil
	})
}

// ClearRollHistory empties the result history.
func (t *Tracker) ClearRollHistory(ctx context.Context) (document.Outcome, error) {
	return t.store.Update(ctx, "clearRollHistory", func(doc *document.Document) (document.Outcome, error) {
		doc.RollHistory = []document.RollResult{}
		return document.OutcomeApplied, nil
	})
}

func (t *Tracker) stamp(result document.RollResult) document.RollResult {
	if result.Timestamp == 0 {
		result.Timestamp = document.Millis(t.now())
	}
	return result
}

// Submit applies a submitted result to doc. When the result resolves a
// pending roll, the roll's actor and skill are recorded instead of the ones
// submitted.
func Submit(doc *document.Document, result document.RollResult) {
	resolved, ok := doc.PendingRoll(result.RequestID)
	if ok {
		result.ActorID = resolved.ActorID
		result.SkillSlug = resolved.SkillSlug
	}
	doc.RollHistory = AppendResult(doc.RollHistory, result)
	if !ok {
		return
	}
	doc.PendingRolls, _ = withoutRoll(doc.PendingRolls, resolved.ID)
	if !resolved.AllowOnlyOne || resolved.BatchGroupID == "" {
		return
	}
	kept := make([]document.PendingRoll, 0, len(doc.PendingRolls))
	for _, r := range doc.PendingRolls {
		if r.ActorID == resolved.ActorID && r.BatchGroupID == resolved.BatchGroupID {
			continue
		}
		kept = append(kept, r)
	}
	doc.PendingRolls = kept
}

// ClearPending drops every pending roll from doc.
func ClearPending(doc *document.Document) {
	doc.PendingRolls = []document.PendingRoll{}
}

// AppendResult appends result and evicts the oldest entries beyond
// document.RollHistoryMax.
func AppendResult(history []document.RollResult, result document.RollResult) []document.RollResult {
	history = append(history, result)
	if over := len(history) - document.RollHistoryMax; over > 0 {
		history = append([]document.RollResult{}, history[over:]...)
	}
	return history
}

func withoutRoll(rolls []document.PendingRoll, rollID string) ([]document.PendingRoll, bool) {
	kept := make([]document.PendingRoll, 0, len(rolls))
	removed := false
	for _, r := range rolls {
		if r.ID == rollID {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	return kept, removed
}
