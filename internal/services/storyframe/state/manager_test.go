package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/storyframe/internal/platform/id"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/challenge"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/participant"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/roll"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/speaker"
	"github.com/louisbranch/storyframe/internal/services/storyframe/transport"
)

type memoryPersister struct {
	mu      sync.Mutex
	current string
	docs    map[string]*document.Document
	saves   int
	failErr error
	loadErr error
}

func newMemoryPersister() *memoryPersister {
	doc := document.Default()
	return &memoryPersister{current: "scene-1", docs: map[string]*document.Document{"scene-1": &doc}}
}

func (p *memoryPersister) Load(context.Context) (*document.Document, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	doc, ok := p.docs[p.current]
	if !ok {
		return nil, nil
	}
	clone := doc.Clone()
	return &clone, nil
}

func (p *memoryPersister) Save(_ context.Context, doc document.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failErr != nil {
		return p.failErr
	}
	clone := doc.Clone()
	p.docs[p.current] = &clone
	p.saves++
	return nil
}

func (p *memoryPersister) SetCurrentScene(_ context.Context, sceneID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.docs[sceneID]; !ok {
		return fmt.Errorf("scene %q not found", sceneID)
	}
	p.current = sceneID
	return nil
}

func (p *memoryPersister) stored(sceneID string) document.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.docs[sceneID].Clone()
}

type recordedPush struct {
	op      string
	payload json.RawMessage
}

type pushRecorder struct {
	mu     sync.Mutex
	pushes []recordedPush
}

func (r *pushRecorder) record(_ context.Context, op string, payload json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, recordedPush{op: op, payload: payload})
}

func (r *pushRecorder) ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.pushes))
	for _, p := range r.pushes {
		out = append(out, p.op)
	}
	return out
}

func (r *pushRecorder) last(op string) (json.RawMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.pushes) - 1; i >= 0; i-- {
		if r.pushes[i].op == op {
			return r.pushes[i].payload, true
		}
	}
	return nil, false
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newLoadedManager(t *testing.T) (*Manager, *memoryPersister, *transport.Loopback) {
	t.Helper()
	persist := newMemoryPersister()
	m := NewManager(persist,
		WithSceneSwitcher(persist),
		WithIDGenerator(id.Sequence("id")),
		WithClock(fixedClock),
		WithLogf(t.Logf),
	)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	loop := transport.NewLoopback(nil, transport.Caller{UserID: "gm-1", Role: transport.RoleGM})
	m.Initialize(loop)
	return m, persist, loop
}

func TestFacadeReturnsSafeDefaultsBeforeInitialize(t *testing.T) {
	m := NewManager(newMemoryPersister())
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx := context.Background()

	if _, outcome, err := m.AddSpeaker(ctx, speaker.AddRequest{ImagePath: "a.png"}); err != nil || outcome != document.OutcomeSkipped {
		t.Fatalf("add speaker = %v, %v, want skipped", outcome, err)
	}
	if outcome, err := m.SetActiveJournal(ctx, "j1"); err != nil || outcome != document.OutcomeSkipped {
		t.Fatalf("set journal = %v, %v, want skipped", outcome, err)
	}
	if _, ok := m.GetActiveChallenge("c1"); ok {
		t.Fatal("expected no challenge before initialize")
	}
	if _, ok := m.ActiveChallenge(); ok {
		t.Fatal("expected no legacy challenge before initialize")
	}
	if _, outcome, err := m.RequestRoll(ctx, roll.Request{ActorID: "a1", SkillSlug: "athletics"}); err != nil || outcome != document.OutcomeSkipped {
		t.Fatalf("request roll = %v, %v, want skipped", outcome, err)
	}
	resolved := m.ResolveSpeaker(ctx, document.Speaker{ImagePath: "a.png", Label: "Bob"})
	if resolved.Image != "a.png" || resolved.Name != "Bob" {
		t.Fatalf("resolved = %+v, want a.png/Bob", resolved)
	}
}

func TestMutationsSkippedWithoutLoadedState(t *testing.T) {
	persist := newMemoryPersister()
	persist.current = "missing"
	m := NewManager(persist)
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	m.Initialize(transport.NewLoopback(nil, transport.Caller{}))

	if _, ok := m.State(); ok {
		t.Fatal("expected no state")
	}
	outcome, err := m.ClearAllSpeakers(context.Background())
	if err != nil || outcome != document.OutcomeSkipped {
		t.Fatalf("clear speakers = %v, %v, want skipped", outcome, err)
	}
	if persist.saves != 0 {
		t.Fatalf("saves = %d, want 0", persist.saves)
	}
}

func TestSpeakerScenarioEndToEnd(t *testing.T) {
	m, persist, loop := newLoadedManager(t)
	rec := &pushRecorder{}
	loop.Subscribe("player-1", rec.record)
	ctx := context.Background()

	s, outcome, err := m.AddSpeaker(ctx, speaker.AddRequest{ImagePath: "a.png", Label: "Bob"})
	if err != nil || outcome != document.OutcomeApplied {
		t.Fatalf("add speaker = %v, %v, want applied", outcome, err)
	}
	if outcome, err := m.SetActiveSpeaker(ctx, s.ID); err != nil || outcome != document.OutcomeApplied {
		t.Fatalf("set active = %v, %v, want applied", outcome, err)
	}
	doc, _ := m.State()
	if string(doc.ActiveSpeaker) != s.ID {
		t.Fatalf("active speaker = %q, want %q", doc.ActiveSpeaker, s.ID)
	}
	if outcome, err := m.RemoveSpeaker(ctx, s.ID); err != nil || outcome != document.OutcomeApplied {
		t.Fatalf("remove = %v, %v, want applied", outcome, err)
	}

	doc, _ = m.State()
	if doc.ActiveSpeaker != "" {
		t.Fatalf("active speaker = %q, want empty", doc.ActiveSpeaker)
	}
	if len(doc.Speakers) != 0 {
		t.Fatalf("speakers = %d, want 0", len(doc.Speakers))
	}
	if stored := persist.stored("scene-1"); len(stored.Speakers) != 0 || stored.ActiveSpeaker != "" {
		t.Fatalf("stored = %+v, want empty speakers", stored)
	}

	if got := len(rec.ops()); got != 3 {
		t.Fatalf("pushes = %d, want 3", got)
	}
	payload, ok := rec.last(transport.OpSyncState)
	if !ok {
		t.Fatal("expected a syncState push")
	}
	var pushed document.Document
	if err := json.Unmarshal(payload, &pushed); err != nil {
		t.Fatalf("decode push: %v", err)
	}
	if len(pushed.Speakers) != 0 || pushed.ActiveSpeaker != "" {
		t.Fatalf("pushed = %+v, want empty speakers", pushed)
	}
}

func TestManagersSeeDocumentAfterSyncState(t *testing.T) {
	m, _, _ := newLoadedManager(t)
	ctx := context.Background()

	replacement := document.Default()
	replacement.Speakers = []document.Speaker{{ID: "old", ImagePath: "old.png", Label: "Old"}}
	m.SyncState(replacement)

	if _, outcome, err := m.AddSpeaker(ctx, speaker.AddRequest{ImagePath: "new.png", Label: "New"}); err != nil || outcome != document.OutcomeApplied {
		t.Fatalf("add speaker = %v, %v, want applied", outcome, err)
	}
	doc, _ := m.State()
	if len(doc.Speakers) != 2 {
		t.Fatalf("speakers = %d, want 2", len(doc.Speakers))
	}
	if doc.Speakers[0].ID != "old" || doc.Speakers[1].ImagePath != "new.png" {
		t.Fatalf("speakers = %+v, want old then new", doc.Speakers)
	}
}

func TestSyncStateRunsChangeHooksWithoutSaving(t *testing.T) {
	m, persist, _ := newLoadedManager(t)
	var seen []document.Document
	m.OnChange(func(doc document.Document) { seen = append(seen, doc) })

	replacement := document.Default()
	replacement.ActiveJournal = "journal-9"
	m.SyncState(replacement)

	if len(seen) != 1 || seen[0].ActiveJournal != "journal-9" {
		t.Fatalf("hooks saw %+v, want one journal-9 document", seen)
	}
	if persist.saves != 0 {
		t.Fatalf("saves = %d, want 0", persist.saves)
	}
}

func TestStorageFailureLeavesStateUnchanged(t *testing.T) {
	m, persist, loop := newLoadedManager(t)
	rec := &pushRecorder{}
	loop.Subscribe("player-1", rec.record)
	persist.failErr = errors.New("disk full")

	_, outcome, err := m.AddSpeaker(context.Background(), speaker.AddRequest{ImagePath: "a.png"})
	if err == nil {
		t.Fatal("expected storage error")
	}
	if outcome != document.OutcomeSkipped {
		t.Fatalf("outcome = %v, want skipped", outcome)
	}
	doc, _ := m.State()
	if len(doc.Speakers) != 0 {
		t.Fatalf("speakers = %d, want 0", len(doc.Speakers))
	}
	if ops := rec.ops(); len(ops) != 0 {
		t.Fatalf("pushes = %v, want none", ops)
	}
}

func TestSetActiveJournal(t *testing.T) {
	m, persist, _ := newLoadedManager(t)
	ctx := context.Background()

	if outcome, err := m.SetActiveJournal(ctx, "journal-1"); err != nil || outcome != document.OutcomeApplied {
		t.Fatalf("set journal = %v, %v, want applied", outcome, err)
	}
	if got := persist.stored("scene-1").ActiveJournal; got != "journal-1" {
		t.Fatalf("journal = %q, want journal-1", got)
	}
	if _, err := m.SetActiveJournal(ctx, ""); err != nil {
		t.Fatalf("clear journal: %v", err)
	}
	if got := persist.stored("scene-1").ActiveJournal; got != "" {
		t.Fatalf("journal = %q, want empty", got)
	}
}

func TestRequestRollPromptsOwningUser(t *testing.T) {
	m, _, loop := newLoadedManager(t)
	owner := &pushRecorder{}
	other := &pushRecorder{}
	loop.Subscribe("player-1", owner.record)
	loop.Subscribe("player-2", other.record)
	ctx := context.Background()

	if _, outcome, err := m.AddParticipant(ctx, participant.AddRequest{ActorID: "actor-1", UserID: "player-1"}); err != nil || outcome != document.OutcomeApplied {
		t.Fatalf("add participant = %v, %v, want applied", outcome, err)
	}
	pending, outcome, err := m.RequestRoll(ctx, roll.Request{ActorID: "actor-1", SkillSlug: "athletics", DC: document.IntPtr(15)})
	if err != nil || outcome != document.OutcomeApplied {
		t.Fatalf("request roll = %v, %v, want applied", outcome, err)
	}
	if pending.UserID != "player-1" {
		t.Fatalf("user = %q, want player-1", pending.UserID)
	}
	if pending.CheckType != document.CheckTypeSkill {
		t.Fatalf("check type = %q, want skill", pending.CheckType)
	}

	payload, ok := owner.last(transport.OpPromptRoll)
	if !ok {
		t.Fatal("expected prompt for owner")
	}
	var prompted document.PendingRoll
	if err := json.Unmarshal(payload, &prompted); err != nil {
		t.Fatalf("decode prompt: %v", err)
	}
	if prompted.ID != pending.ID {
		t.Fatalf("prompted = %q, want %q", prompted.ID, pending.ID)
	}
	if _, ok := other.last(transport.OpPromptRoll); ok {
		t.Fatal("expected no prompt for other user")
	}
}

func TestRequestRollRejectsActorWithoutParticipant(t *testing.T) {
	m, persist, _ := newLoadedManager(t)
	_, outcome, err := m.RequestRoll(context.Background(), roll.Request{ActorID: "actor-9", SkillSlug: "stealth"})
	if err != nil {
		t.Fatalf("request roll: %v", err)
	}
	if outcome != document.OutcomeRejected {
		t.Fatalf("outcome = %v, want rejected", outcome)
	}
	if persist.saves != 0 {
		t.Fatalf("saves = %d, want 0", persist.saves)
	}
}

func TestSubmitRollResultResolvesPendingRoll(t *testing.T) {
	m, _, _ := newLoadedManager(t)
	ctx := context.Background()
	pending, _, err := m.AddPendingRoll(ctx, roll.Request{ActorID: "actor-1", UserID: "player-1", SkillSlug: "arcana"})
	if err != nil {
		t.Fatalf("add pending roll: %v", err)
	}

	outcome, err := m.SubmitRollResult(ctx, document.RollResult{RequestID: pending.ID, ActorID: "actor-1", SkillSlug: "arcana", Total: 18, DegreeOfSuccess: 2})
	if err != nil || outcome != document.OutcomeApplied {
		t.Fatalf("submit = %v, %v, want applied", outcome, err)
	}
	doc, _ := m.State()
	if len(doc.PendingRolls) != 0 {
		t.Fatalf("pending = %d, want 0", len(doc.PendingRolls))
	}
	if len(doc.RollHistory) != 1 || doc.RollHistory[0].Timestamp != document.Millis(fixedClock()) {
		t.Fatalf("history = %+v, want one stamped result", doc.RollHistory)
	}
}

func TestChallengesThroughFacade(t *testing.T) {
	m, _, _ := newLoadedManager(t)
	ctx := context.Background()

	c, ok, err := m.AddActiveChallenge(ctx, challenge.AddRequest{Name: "Locked Door"})
	if err != nil || !ok {
		t.Fatalf("add challenge = %v, %v, want ok", ok, err)
	}
	if _, ok, _ := m.AddActiveChallenge(ctx, challenge.AddRequest{Name: "locked door"}); ok {
		t.Fatal("expected case-insensitive collision")
	}
	got, ok := m.GetActiveChallenge(c.ID)
	if !ok || got.Name != "Locked Door" {
		t.Fatalf("challenge = %+v, %v, want Locked Door", got, ok)
	}
	if outcome, err := m.ClearAllChallenges(ctx); err != nil || outcome != document.OutcomeApplied {
		t.Fatalf("clear = %v, %v, want applied", outcome, err)
	}
	if _, ok := m.ActiveChallenge(); ok {
		t.Fatal("expected no active challenge")
	}
}

func TestChangeSceneLoadsSceneAndClearsPendingRolls(t *testing.T) {
	m, persist, _ := newLoadedManager(t)
	ctx := context.Background()

	other := document.Default()
	other.ActiveJournal = "journal-2"
	other.PendingRolls = []document.PendingRoll{{ID: "r1", ActorID: "actor-1", SkillSlug: "stealth", CheckType: document.CheckTypeSkill}}
	persist.docs["scene-2"] = &other

	outcome, err := m.ChangeScene(ctx, "scene-2")
	if err != nil || outcome != document.OutcomeApplied {
		t.Fatalf("change scene = %v, %v, want applied", outcome, err)
	}
	doc, _ := m.State()
	if doc.ActiveJournal != "journal-2" {
		t.Fatalf("journal = %q, want journal-2", doc.ActiveJournal)
	}
	if len(doc.PendingRolls) != 0 {
		t.Fatalf("pending = %d, want 0", len(doc.PendingRolls))
	}
	if stored := persist.stored("scene-2"); len(stored.PendingRolls) != 0 {
		t.Fatalf("stored pending = %d, want 0", len(stored.PendingRolls))
	}
}

func TestChangeSceneUnknownSceneKeepsState(t *testing.T) {
	m, _, _ := newLoadedManager(t)
	ctx := context.Background()
	if _, err := m.SetActiveJournal(ctx, "journal-1"); err != nil {
		t.Fatalf("set journal: %v", err)
	}
	if _, err := m.ChangeScene(ctx, "nope"); err == nil {
		t.Fatal("expected error for unknown scene")
	}
	doc, _ := m.State()
	if doc.ActiveJournal != "journal-1" {
		t.Fatalf("journal = %q, want journal-1", doc.ActiveJournal)
	}
}

func TestChangeSceneLoadFailureDropsPreviousDocument(t *testing.T) {
	m, persist, _ := newLoadedManager(t)
	ctx := context.Background()
	if _, err := m.SetActiveJournal(ctx, "journal-1"); err != nil {
		t.Fatalf("set journal: %v", err)
	}
	other := document.Default()
	other.ActiveJournal = "journal-2"
	persist.docs["scene-2"] = &other

	persist.mu.Lock()
	persist.loadErr = errors.New("flag store down")
	persist.mu.Unlock()
	if _, err := m.ChangeScene(ctx, "scene-2"); err == nil {
		t.Fatal("expected load error")
	}
	if _, ok := m.State(); ok {
		t.Fatal("expected no state after failed scene load")
	}

	persist.mu.Lock()
	persist.loadErr = nil
	persist.mu.Unlock()
	outcome, err := m.SetActiveJournal(ctx, "journal-3")
	if err != nil || outcome != document.OutcomeSkipped {
		t.Fatalf("set journal = %v, %v, want skipped", outcome, err)
	}
	if stored := persist.stored("scene-2"); stored.ActiveJournal != "journal-2" {
		t.Fatalf("scene-2 journal = %q, want journal-2", stored.ActiveJournal)
	}
}

func TestDuplicateSpeakerNoticeReachesCaller(t *testing.T) {
	m, _, loop := newLoadedManager(t)
	gm := &pushRecorder{}
	loop.Subscribe("gm-1", gm.record)
	var local []document.Notice
	m.OnNotice(func(n document.Notice) { local = append(local, n) })

	ctx := transport.WithCaller(context.Background(), transport.Caller{UserID: "gm-1", Role: transport.RoleGM})
	if _, _, err := m.AddSpeaker(ctx, speaker.AddRequest{ImagePath: "a.png", Label: "Bob"}); err != nil {
		t.Fatalf("add speaker: %v", err)
	}
	_, outcome, err := m.AddSpeaker(ctx, speaker.AddRequest{ImagePath: "a.png", Label: "Bob"})
	if err != nil || outcome != document.OutcomeExisting {
		t.Fatalf("add duplicate = %v, %v, want existing", outcome, err)
	}
	if len(local) != 1 || local[0].Level != document.NoticeWarning {
		t.Fatalf("local notices = %+v, want one warning", local)
	}
	payload, ok := gm.last(transport.OpNotice)
	if !ok {
		t.Fatal("expected notice push to caller")
	}
	var notice document.Notice
	if err := json.Unmarshal(payload, &notice); err != nil {
		t.Fatalf("decode notice: %v", err)
	}
	if notice.Message != "Bob is already in the speaker list" {
		t.Fatalf("message = %q, want duplicate warning", notice.Message)
	}
}
