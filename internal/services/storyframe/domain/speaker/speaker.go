// Package speaker manages the NPC portraits the GM can put on camera.
package speaker

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/storyframe/internal/platform/errors"
	"github.com/louisbranch/storyframe/internal/platform/id"
	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
)

const (
	// PlaceholderImage is shown when a speaker has no usable portrait.
	PlaceholderImage = "icons/svg/mystery-man.svg"
	// UnknownName is shown when a speaker has no usable name.
	UnknownName = "Unknown"
)

// AddRequest describes a speaker to add. ActorID wins over ImagePath.
type AddRequest struct {
	ActorID      string `json:"actorId,omitempty"`
	ImagePath    string `json:"imagePath,omitempty"`
	Label        string `json:"label"`
	IsNameHidden bool   `json:"isNameHidden,omitempty"`
}

// Resolved is what players see for a speaker.
type Resolved struct {
	Image string `json:"img"`
	Name  string `json:"name"`
}

// Manager mutates the speaker list through a document.Store.
type Manager struct {
	store    document.Store
	newID    id.Generator
	notifier document.Notifier
	actors   document.ActorLookup
}

// Option configures a Manager.
type Option func(*Manager)

// WithIDGenerator overrides how speaker ids are minted.
func WithIDGenerator(gen id.Generator) Option {
	return func(m *Manager) { m.newID = gen }
}

// WithNotifier sets where duplicate-add notices go.
func WithNotifier(notifier document.Notifier) Option {
	return func(m *Manager) { m.notifier = notifier }
}

// WithActors sets the actor directory used by ResolveSpeaker and AddSpeaker.
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

// Speakers returns the current speakers in display order.
func (m *Manager) Speakers() []document.Speaker {
	doc, ok := m.store.Read()
	if !ok {
		return nil
	}
	return doc.Speakers
}

// ActiveSpeaker returns the on-camera speaker id, or "".
func (m *Manager) ActiveSpeaker() string {
	doc, ok := m.store.Read()
	if !ok {
		return ""
	}
	return string(doc.ActiveSpeaker)
}

// UpdateSpeakers replaces the whole list. Entries without an id get one, and
// an active speaker missing from the new list is cleared. A list repeating an
// id, an actor, or an actorless image is rejected without mutation.
func (m *Manager) UpdateSpeakers(ctx context.Context, speakers []document.Speaker) (document.Outcome, error) {
	return m.store.Update(ctx, "updateSpeakers", func(doc *document.Document) (document.Outcome, error) {
		next := make([]document.Speaker, 0, len(speakers))
		ids := make(map[string]bool, len(speakers))
		for _, s := range speakers {
			s = s.Clone()
			if strings.TrimSpace(s.ID) == "" {
				newID, err := m.newID()
				if err != nil {
					return document.OutcomeSkipped, fmt.Errorf("generate speaker id: %w", err)
				}
				s.ID = newID
			}
			if ids[s.ID] {
				return document.OutcomeRejected, nil
			}
			ids[s.ID] = true
			if s.ActorID != "" || s.ImagePath != "" {
				if _, dup := findDuplicate(next, s.ActorID, s.ImagePath); dup {
					return document.OutcomeRejected, nil
				}
			}
			next = append(next, s)
		}
		doc.Speakers = next
		if _, ok := doc.Speaker(string(doc.ActiveSpeaker)); !ok {
			doc.ActiveSpeaker = ""
		}
		doc.Normalize()
		return document.OutcomeApplied, nil
	})
}

// SetActiveSpeaker puts speakerID on camera; "" clears the selection.
// An unknown id is rejected.
func (m *Manager) SetActiveSpeaker(ctx context.Context, speakerID string) (document.Outcome, error) {
	return m.store.Update(ctx, "setActiveSpeaker", func(doc *document.Document) (document.Outcome, error) {
		if speakerID != "" {
			if _, ok := doc.Speaker(speakerID); !ok {
				return document.OutcomeRejected, nil
			}
		}
		doc.ActiveSpeaker = document.NullID(speakerID)
		return document.OutcomeApplied, nil
	})
}

// AddSpeaker appends a speaker unless one with the same actor, or with the
// same image when no actor is given, already exists. In that case the
// existing record is returned with OutcomeExisting and a notice is sent.
func (m *Manager) AddSpeaker(ctx context.Context, req AddRequest) (document.Speaker, document.Outcome, error) {
	actorID := strings.TrimSpace(req.ActorID)
	imagePath := strings.TrimSpace(req.ImagePath)
	if actorID == "" && imagePath == "" {
		return document.Speaker{}, document.OutcomeRejected, apperrors.New(apperrors.CodeSpeakerSourceRequired, "speaker needs an actor or an image")
	}
	label := strings.TrimSpace(req.Label)
	if label == "" && actorID != "" && m.actors != nil {
		if actor, err := m.actors.Actor(ctx, actorID); err == nil {
			label = actor.Name
		}
	}

	var result document.Speaker
	outcome, err := m.store.Update(ctx, "addSpeaker", func(doc *document.Document) (document.Outcome, error) {
		if existing, ok := findDuplicate(doc.Speakers, actorID, imagePath); ok {
			result = existing
			return document.OutcomeExisting, nil
		}
		newID, err := m.newID()
		if err != nil {
			return document.OutcomeSkipped, fmt.Errorf("generate speaker id: %w", err)
		}
		result = document.Speaker{
			ID:           newID,
			ActorID:      actorID,
			ImagePath:    imagePath,
			Label:        label,
			IsNameHidden: req.IsNameHidden,
			AltImages:    []string{},
		}
		doc.Speakers = append(doc.Speakers, result)
		return document.OutcomeApplied, nil
	})
	if err != nil {
		return document.Speaker{}, outcome, err
	}
	if outcome == document.OutcomeExisting && m.notifier != nil {
		name := result.Label
		if name == "" {
			name = UnknownName
		}
		m.notifier.Notify(ctx, document.Notice{
			Level:   document.NoticeWarning,
			Message: fmt.Sprintf("%s is already in the speaker list", name),
		})
	}
	if outcome == document.OutcomeSkipped {
		return document.Speaker{}, outcome, nil
	}
	return result, outcome, nil
}

func findDuplicate(speakers []document.Speaker, actorID, imagePath string) (document.Speaker, bool) {
	for _, s := range speakers {
		if actorID != "" {
			if s.ActorID == actorID {
				return s.Clone(), true
			}
			continue
		}
		if s.ActorID == "" && s.ImagePath == imagePath {
			return s.Clone(), true
		}
	}
	return document.Speaker{}, false
}

// RemoveSpeaker drops a speaker and clears the selection if it was on camera.
func (m *Manager) RemoveSpeaker(ctx context.Context, speakerID string) (document.Outcome, error) {
	return m.store.Update(ctx, "removeSpeaker", func(doc *document.Document) (document.Outcome, error) {
		kept := doc.Speakers[:0]
		removed := false
		for _, s := range doc.Speakers {
			if s.ID == speakerID {
				removed = true
				continue
			}
			kept = append(kept, s)
		}
		if !removed {
			return document.OutcomeRejected, nil
		}
		doc.Speakers = kept
		if string(doc.ActiveSpeaker) == speakerID {
			doc.ActiveSpeaker = ""
		}
		return document.OutcomeApplied, nil
	})
}

// ClearAllSpeakers removes every speaker and the selection.
func (m *Manager) ClearAllSpeakers(ctx context.Context) (document.Outcome, error) {
	return m.store.Update(ctx, "clearAllSpeakers", func(doc *document.Document) (document.Outcome, error) {
		doc.Speakers = []document.Speaker{}
		doc.ActiveSpeaker = ""
		return document.OutcomeApplied, nil
	})
}

// ToggleSpeakerNameVisibility flips whether players see the speaker's name.
func (m *Manager) ToggleSpeakerNameVisibility(ctx context.Context, speakerID string) (document.Outcome, error) {
	return m.edit(ctx, "toggleSpeakerNameVisibility", speakerID, func(s *document.Speaker) {
		s.IsNameHidden = !s.IsNameHidden
	})
}

// ToggleSpeakerVisibility flips whether the speaker is shown to players at all.
func (m *Manager) ToggleSpeakerVisibility(ctx context.Context, speakerID string) (document.Outcome, error) {
	return m.edit(ctx, "toggleSpeakerVisibility", speakerID, func(s *document.Speaker) {
		s.IsHidden = !s.IsHidden
	})
}

// SetSpeakerAltImages replaces the alternate portraits of a speaker.
func (m *Manager) SetSpeakerAltImages(ctx context.Context, speakerID string, images []string) (document.Outcome, error) {
	cleaned := make([]string, 0, len(images))
	for _, image := range images {
		if image = strings.TrimSpace(image); image != "" {
			cleaned = append(cleaned, image)
		}
	}
	return m.edit(ctx, "setSpeakerAltImages", speakerID, func(s *document.Speaker) {
		s.AltImages = cleaned
	})
}

func (m *Manager) edit(ctx context.Context, op, speakerID string, change func(*document.Speaker)) (document.Outcome, error) {
	return m.store.Update(ctx, op, func(doc *document.Document) (document.Outcome, error) {
		for i := range doc.Speakers {
			if doc.Speakers[i].ID == speakerID {
				change(&doc.Speakers[i])
				return document.OutcomeApplied, nil
			}
		}
		return document.OutcomeRejected, nil
	})
}

// ResolveSpeaker returns the portrait and name to display. A missing or
// deleted actor falls back to the speaker's own image and label.
func (m *Manager) ResolveSpeaker(ctx context.Context, s document.Speaker) Resolved {
	if s.ActorID != "" && m.actors != nil {
		if actor, err := m.actors.Actor(ctx, s.ActorID); err == nil {
			resolved := Resolved{Image: actor.Image, Name: actor.Name}
			if resolved.Image == "" {
				resolved.Image = fallbackImage(s)
			}
			if resolved.Name == "" {
				resolved.Name = fallbackName(s)
			}
			return resolved
		}
	}
	return Resolved{Image: fallbackImage(s), Name: fallbackName(s)}
}

func fallbackImage(s document.Speaker) string {
	if s.ImagePath != "" {
		return s.ImagePath
	}
	return PlaceholderImage
}

func fallbackName(s document.Speaker) string {
	if s.Label != "" {
		return s.Label
	}
	return UnknownName
}
