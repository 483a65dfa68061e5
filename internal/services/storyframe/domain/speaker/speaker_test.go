package speaker

import (
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/louisbranch/storyframe/internal/platform/errors"
	"github.com/louisbranch/storyframe/internal/platform/id"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document/documenttest"
)

func newTestManager(store *documenttest.Store, notices *documenttest.Notices, actors documenttest.Actors) *Manager {
	return NewManager(store,
		WithIDGenerator(id.Sequence("spk")),
		WithNotifier(notices),
		WithActors(actors),
	)
}

func TestAddSpeakerByImage(t *testing.T) {
	store := documenttest.NewStore(document.Default())
	m := newTestManager(store, &documenttest.Notices{}, nil)

	got, outcome, err := m.AddSpeaker(context.Background(), AddRequest{ImagePath: "a.png", Label: "Bob"})
	if err != nil {
		t.Fatalf("add speaker: %v", err)
	}
	if outcome != document.OutcomeApplied {
		t.Fatalf("outcome = %v, want %v", outcome, document.OutcomeApplied)
	}
	if got.ID != "spk-1" || got.ImagePath != "a.png" || got.Label != "Bob" {
		t.Fatalf("speaker = %+v, want spk-1 a.png Bob", got)
	}
	if got.AltImages == nil {
		t.Fatal("expected alt images to be an empty list")
	}
	if speakers := m.Speakers(); len(speakers) != 1 {
		t.Fatalf("speakers = %d, want 1", len(speakers))
	}
}

func TestAddSpeakerDuplicateActorReturnsExisting(t *testing.T) {
	store := documenttest.NewStore(document.Default())
	notices := &documenttest.Notices{}
	m := newTestManager(store, notices, nil)
	ctx := context.Background()

	first, _, err := m.AddSpeaker(ctx, AddRequest{ActorID: "actor-1", Label: "Guard"})
	if err != nil {
		t.Fatalf("add speaker: %v", err)
	}
	second, outcome, err := m.AddSpeaker(ctx, AddRequest{ActorID: "actor-1", Label: "Other label", ImagePath: "x.png"})
	if err != nil {
		t.Fatalf("add duplicate: %v", err)
	}
	if outcome != document.OutcomeExisting {
		t.Fatalf("outcome = %v, want %v", outcome, document.OutcomeExisting)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate id = %q, want %q", second.ID, first.ID)
	}
	if n := len(m.Speakers()); n != 1 {
		t.Fatalf("speakers = %d, want 1", n)
	}
	if store.Commits != 1 {
		t.Fatalf("commits = %d, want 1", store.Commits)
	}
	if len(notices.List) != 1 || !strings.Contains(notices.List[0].Message, "Guard") {
		t.Fatalf("notices = %+v, want one about Guard", notices.List)
	}
}

func TestAddSpeakerDuplicateImageOnlyAmongActorless(t *testing.T) {
	store := documenttest.NewStore(document.Default())
	m := newTestManager(store, &documenttest.Notices{}, nil)
	ctx := context.Background()

	if _, _, err := m.AddSpeaker(ctx, AddRequest{ActorID: "actor-1", ImagePath: "a.png"}); err != nil {
		t.Fatalf("add actor speaker: %v", err)
	}
	_, outcome, err := m.AddSpeaker(ctx, AddRequest{ImagePath: "a.png", Label: "Portrait"})
	if err != nil {
		t.Fatalf("add image speaker: %v", err)
	}
	if outcome != document.OutcomeApplied {
		t.Fatalf("outcome = %v, want %v", outcome, document.OutcomeApplied)
	}
	_, outcome, err = m.AddSpeaker(ctx, AddRequest{ImagePath: "a.png", Label: "Again"})
	if err != nil {
		t.Fatalf("add image duplicate: %v", err)
	}
	if outcome != document.OutcomeExisting {
		t.Fatalf("outcome = %v, want %v", outcome, document.OutcomeExisting)
	}
}

func TestAddSpeakerRequiresSource(t *testing.T) {
	m := newTestManager(documenttest.NewStore(document.Default()), nil, nil)
	_, outcome, err := m.AddSpeaker(context.Background(), AddRequest{Label: "Nobody"})
	if !errors.Is(err, apperrors.New(apperrors.CodeSpeakerSourceRequired, "")) {
		t.Fatalf("err = %v, want %s", err, apperrors.CodeSpeakerSourceRequired)
	}
	if outcome != document.OutcomeRejected {
		t.Fatalf("outcome = %v, want %v", outcome, document.OutcomeRejected)
	}
}

func TestAddSpeakerLabelsFromActor(t *testing.T) {
	actors := documenttest.Actors{"actor-1": {ID: "actor-1", Name: "Captain", Image: "captain.png"}}
	m := newTestManager(documenttest.NewStore(document.Default()), nil, actors)
	got, _, err := m.AddSpeaker(context.Background(), AddRequest{ActorID: "actor-1"})
	if err != nil {
		t.Fatalf("add speaker: %v", err)
	}
	if got.Label != "Captain" {
		t.Fatalf("label = %q, want %q", got.Label, "Captain")
	}
}

func TestAddSpeakerWithoutStateIsSkipped(t *testing.T) {
	m := newTestManager(documenttest.NewEmptyStore(), nil, nil)
	got, outcome, err := m.AddSpeaker(context.Background(), AddRequest{ImagePath: "a.png"})
	if err != nil {
		t.Fatalf("add speaker: %v", err)
	}
	if outcome != document.OutcomeSkipped || got.ID != "" {
		t.Fatalf("speaker = %+v outcome = %v, want skipped zero value", got, outcome)
	}
	if m.Speakers() != nil || m.ActiveSpeaker() != "" {
		t.Fatal("expected zero values without state")
	}
}

func TestRemoveActiveSpeakerClearsSelection(t *testing.T) {
	store := documenttest.NewStore(document.Default())
	m := newTestManager(store, nil, nil)
	ctx := context.Background()

	bob, _, err := m.AddSpeaker(ctx, AddRequest{ImagePath: "a.png", Label: "Bob"})
	if err != nil {
		t.Fatalf("add speaker: %v", err)
	}
	if _, err := m.SetActiveSpeaker(ctx, bob.ID); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if got := m.ActiveSpeaker(); got != bob.ID {
		t.Fatalf("active speaker = %q, want %q", got, bob.ID)
	}

	outcome, err := m.RemoveSpeaker(ctx, bob.ID)
	if err != nil {
		t.Fatalf("remove speaker: %v", err)
	}
	if outcome != document.OutcomeApplied {
		t.Fatalf("outcome = %v, want %v", outcome, document.OutcomeApplied)
	}
	doc, _ := store.Read()
	if doc.ActiveSpeaker != "" {
		t.Fatalf("active speaker = %q, want empty", doc.ActiveSpeaker)
	}
	if len(doc.Speakers) != 0 {
		t.Fatalf("speakers = %d, want 0", len(doc.Speakers))
	}
}

func TestRemoveOtherSpeakerKeepsSelection(t *testing.T) {
	doc := document.Default()
	doc.Speakers = []document.Speaker{{ID: "a"}, {ID: "b"}}
	doc.ActiveSpeaker = "a"
	store := documenttest.NewStore(doc)
	m := newTestManager(store, nil, nil)

	if _, err := m.RemoveSpeaker(context.Background(), "b"); err != nil {
		t.Fatalf("remove speaker: %v", err)
	}
	if got := m.ActiveSpeaker(); got != "a" {
		t.Fatalf("active speaker = %q, want a", got)
	}
	outcome, err := m.RemoveSpeaker(context.Background(), "missing")
	if err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	if outcome != document.OutcomeRejected {
		t.Fatalf("outcome = %v, want %v", outcome, document.OutcomeRejected)
	}
}

func TestSetActiveSpeakerRejectsUnknownAndClears(t *testing.T) {
	doc := document.Default()
	doc.Speakers = []document.Speaker{{ID: "a"}}
	doc.ActiveSpeaker = "a"
	m := newTestManager(documenttest.NewStore(doc), nil, nil)
	ctx := context.Background()

	outcome, err := m.SetActiveSpeaker(ctx, "ghost")
	if err != nil {
		t.Fatalf("set active: %v", err)
	}
	if outcome != document.OutcomeRejected || m.ActiveSpeaker() != "a" {
		t.Fatalf("outcome = %v active = %q, want rejected a", outcome, m.ActiveSpeaker())
	}
	if _, err := m.SetActiveSpeaker(ctx, ""); err != nil {
		t.Fatalf("clear active: %v", err)
	}
	if m.ActiveSpeaker() != "" {
		t.Fatalf("active speaker = %q, want empty", m.ActiveSpeaker())
	}
}

func TestUpdateSpeakersAssignsIDsAndDropsDanglingSelection(t *testing.T) {
	doc := document.Default()
	doc.Speakers = []document.Speaker{{ID: "old"}}
	doc.ActiveSpeaker = "old"
	m := newTestManager(documenttest.NewStore(doc), nil, nil)

	outcome, err := m.UpdateSpeakers(context.Background(), []document.Speaker{
		{ID: "keep", Label: "Keep"},
		{Label: "Fresh"},
	})
	if err != nil {
		t.Fatalf("update speakers: %v", err)
	}
	if outcome != document.OutcomeApplied {
		t.Fatalf("outcome = %v, want %v", outcome, document.OutcomeApplied)
	}
	speakers := m.Speakers()
	if len(speakers) != 2 || speakers[0].ID != "keep" || speakers[1].ID != "spk-1" {
		t.Fatalf("speakers = %+v, want keep then spk-1", speakers)
	}
	if speakers[1].AltImages == nil {
		t.Fatal("expected normalized alt images")
	}
	if m.ActiveSpeaker() != "" {
		t.Fatalf("active speaker = %q, want cleared", m.ActiveSpeaker())
	}
}

func TestUpdateSpeakersRejectsDuplicates(t *testing.T) {
	cases := map[string][]document.Speaker{
		"id":    {{ID: "s1", ImagePath: "a.png"}, {ID: "s1", ImagePath: "b.png"}},
		"actor": {{ID: "s1", ActorID: "a1"}, {ID: "s2", ActorID: "a1"}},
		"image": {{ID: "s1", ImagePath: "x.png"}, {ID: "s2", ImagePath: "x.png"}},
	}
	for name, speakers := range cases {
		t.Run(name, func(t *testing.T) {
			doc := document.Default()
			doc.Speakers = []document.Speaker{{ID: "old", ImagePath: "old.png", AltImages: []string{}}}
			m := newTestManager(documenttest.NewStore(doc), nil, nil)

			outcome, err := m.UpdateSpeakers(context.Background(), speakers)
			if err != nil {
				t.Fatalf("update speakers: %v", err)
			}
			if outcome != document.OutcomeRejected {
				t.Fatalf("outcome = %v, want %v", outcome, document.OutcomeRejected)
			}
			if got := m.Speakers(); len(got) != 1 || got[0].ID != "old" {
				t.Fatalf("speakers = %+v, want unchanged", got)
			}
		})
	}
}

func TestUpdateSpeakersAllowsSharedImageAcrossActors(t *testing.T) {
	m := newTestManager(documenttest.NewStore(document.Default()), nil, nil)
	outcome, err := m.UpdateSpeakers(context.Background(), []document.Speaker{
		{ID: "s1", ActorID: "a1", ImagePath: "x.png"},
		{ID: "s2", ActorID: "a2", ImagePath: "x.png"},
		{ID: "s3", ImagePath: "x.png"},
	})
	if err != nil || outcome != document.OutcomeApplied {
		t.Fatalf("update speakers = %v, %v, want applied", outcome, err)
	}
	if got := len(m.Speakers()); got != 3 {
		t.Fatalf("speakers = %d, want 3", got)
	}
}

func TestToggleAndAltImages(t *testing.T) {
	doc := document.Default()
	doc.Speakers = []document.Speaker{{ID: "a", AltImages: []string{}}}
	m := newTestManager(documenttest.NewStore(doc), nil, nil)
	ctx := context.Background()

	if _, err := m.ToggleSpeakerNameVisibility(ctx, "a"); err != nil {
		t.Fatalf("toggle name: %v", err)
	}
	if _, err := m.ToggleSpeakerVisibility(ctx, "a"); err != nil {
		t.Fatalf("toggle visibility: %v", err)
	}
	if _, err := m.SetSpeakerAltImages(ctx, "a", []string{"b.png", " ", "c.png"}); err != nil {
		t.Fatalf("set alt images: %v", err)
	}
	got := m.Speakers()[0]
	if !got.IsNameHidden || !got.IsHidden {
		t.Fatalf("speaker = %+v, want hidden name and speaker", got)
	}
	if len(got.AltImages) != 2 || got.AltImages[1] != "c.png" {
		t.Fatalf("alt images = %v, want [b.png c.png]", got.AltImages)
	}

	outcome, err := m.ToggleSpeakerNameVisibility(ctx, "missing")
	if err != nil {
		t.Fatalf("toggle missing: %v", err)
	}
	if outcome != document.OutcomeRejected {
		t.Fatalf("outcome = %v, want %v", outcome, document.OutcomeRejected)
	}
}

func TestClearAllSpeakers(t *testing.T) {
	doc := document.Default()
	doc.Speakers = []document.Speaker{{ID: "a"}, {ID: "b"}}
	doc.ActiveSpeaker = "b"
	m := newTestManager(documenttest.NewStore(doc), nil, nil)

	if _, err := m.ClearAllSpeakers(context.Background()); err != nil {
		t.Fatalf("clear speakers: %v", err)
	}
	if len(m.Speakers()) != 0 || m.ActiveSpeaker() != "" {
		t.Fatalf("speakers = %v active = %q, want none", m.Speakers(), m.ActiveSpeaker())
	}
}

func TestResolveSpeakerFallbacks(t *testing.T) {
	actors := documenttest.Actors{
		"live":     {ID: "live", Name: "Captain", Image: "captain.png"},
		"no-image": {ID: "no-image", Name: "Shade"},
	}
	m := newTestManager(documenttest.NewStore(document.Default()), nil, actors)
	ctx := context.Background()

	cases := []struct {
		name    string
		speaker document.Speaker
		want    Resolved
	}{
		{"actor", document.Speaker{ActorID: "live", Label: "ignored"}, Resolved{Image: "captain.png", Name: "Captain"}},
		{"actor without image", document.Speaker{ActorID: "no-image", ImagePath: "shade.png"}, Resolved{Image: "shade.png", Name: "Shade"}},
		{"deleted actor", document.Speaker{ActorID: "gone", ImagePath: "a.png", Label: "Bob"}, Resolved{Image: "a.png", Name: "Bob"}},
		{"deleted actor bare", document.Speaker{ActorID: "gone"}, Resolved{Image: PlaceholderImage, Name: UnknownName}},
		{"image only", document.Speaker{ImagePath: "b.png", Label: "Ann"}, Resolved{Image: "b.png", Name: "Ann"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := m.ResolveSpeaker(ctx, tc.speaker); got != tc.want {
				t.Fatalf("resolved = %+v, want %+v", got, tc.want)
			}
		})
	}

	bare := NewManager(documenttest.NewStore(document.Default()))
	if got := bare.ResolveSpeaker(ctx, document.Speaker{ActorID: "live"}); got.Name != UnknownName {
		t.Fatalf("resolved without directory = %+v, want fallback", got)
	}
}
