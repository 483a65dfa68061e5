package document

import (
	"bytes"
	"encoding/json"
)

const (
	// CurrentVersion is the schema version written by this build.
	CurrentVersion = 4
	// RollHistoryMax bounds the roll result history; older results are evicted first.
	RollHistoryMax = 50
	// FlagNamespace and FlagKey address the scene flag holding the document.
	FlagNamespace = "storyframe"
	FlagKey       = "data"
)

// CheckType distinguishes skill checks from saving throws.
type CheckType string

const (
	CheckTypeSkill CheckType = "skill"
	CheckTypeSave  CheckType = "save"
)

// Valid reports whether t is a known check type.
func (t CheckType) Valid() bool {
	return t == CheckTypeSkill || t == CheckTypeSave
}

// NullID is an identifier persisted as JSON null when empty.
type NullID string

// MarshalJSON writes null for the empty id.
func (id NullID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts null or a string.
func (id *NullID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*id = ""
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*id = NullID(value)
	return nil
}

// Document is the root state object stored once per scene.
type Document struct {
	Version          int           `json:"version"`
	ActiveJournal    NullID        `json:"activeJournal"`
	ActiveSpeaker    NullID        `json:"activeSpeaker"`
	Speakers         []Speaker     `json:"speakers"`
	Participants     []Participant `json:"participants"`
	PendingRolls     []PendingRoll `json:"pendingRolls"`
	RollHistory      []RollResult  `json:"rollHistory"`
	ActiveChallenges []Challenge   `json:"activeChallenges"`
}

// Speaker is an NPC identity that can be put on camera.
type Speaker struct {
	ID           string   `json:"id"`
	ActorID      string   `json:"actorId,omitempty"`
	ImagePath    string   `json:"imagePath,omitempty"`
	Label        string   `json:"label"`
	IsNameHidden bool     `json:"isNameHidden"`
	IsHidden     bool     `json:"isHidden"`
	AltImages    []string `json:"altImages"`
}

// Participant is a player character bound to the user who controls it.
type Participant struct {
	ID           string `json:"id"`
	ActorID      string `json:"actorId"`
	UserID       string `json:"userId"`
	IsNameHidden bool   `json:"isNameHidden"`
}

// PendingRoll is an outstanding check requested of one actor.
type PendingRoll struct {
	ID            string    `json:"id"`
	ActorID       string    `json:"actorId"`
	UserID        string    `json:"userId"`
	SkillSlug     string    `json:"skillSlug"`
	CheckType     CheckType `json:"checkType"`
	ActionSlug    string    `json:"actionSlug,omitempty"`
	ActionVariant string    `json:"actionVariant,omitempty"`
	DC            *int      `json:"dc"`
	IsSecretRoll  bool      `json:"isSecretRoll"`
	Timestamp     int64     `json:"timestamp"`
	BatchGroupID  string    `json:"batchGroupId,omitempty"`
	AllowOnlyOne  bool      `json:"allowOnlyOne"`
}

// RollResult records the outcome of a pending roll.
type RollResult struct {
	RequestID       string `json:"requestId"`
	ActorID         string `json:"actorId"`
	SkillSlug       string `json:"skillSlug"`
	Total           int    `json:"total"`
	DegreeOfSuccess int    `json:"degreeOfSuccess"`
	Timestamp       int64  `json:"timestamp"`
	ChatMessageID   string `json:"chatMessageId,omitempty"`
}

// Challenge is a named bundle of check options presented to the table.
type Challenge struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Image     string            `json:"image,omitempty"`
	Options   []ChallengeOption `json:"options"`
	CreatedAt int64             `json:"createdAt"`
}

// ChallengeOption is one way to approach a challenge.
type ChallengeOption struct {
	Description  string        `json:"description"`
	SkillOptions []SkillOption `json:"skillOptions"`
}

// SkillOption is a single check players may attempt for an option.
type SkillOption struct {
	Skill     string    `json:"skill"`
	Action    string    `json:"action,omitempty"`
	DC        *int      `json:"dc"`
	IsSecret  bool      `json:"isSecret"`
	CheckType CheckType `json:"checkType"`
}

// Default returns an empty document at CurrentVersion.
func Default() Document {
	doc := Document{Version: CurrentVersion}
	doc.Normalize()
	return doc
}

// Normalize replaces missing sequences with empty ones so every field is
// present with its persisted type.
func (d *Document) Normalize() {
	if d.Speakers == nil {
		d.Speakers = []Speaker{}
	}
	for i := range d.Speakers {
		if d.Speakers[i].AltImages == nil {
			d.Speakers[i].AltImages = []string{}
		}
	}
	if d.Participants == nil {
		d.Participants = []Participant{}
	}
	if d.PendingRolls == nil {
		d.PendingRolls = []PendingRoll{}
	}
	if d.RollHistory == nil {
		d.RollHistory = []RollResult{}
	}
	if d.ActiveChallenges == nil {
		d.ActiveChallenges = []Challenge{}
	}
	for i := range d.ActiveChallenges {
		c := &d.ActiveChallenges[i]
		if c.Options == nil {
			c.Options = []ChallengeOption{}
		}
		for j := range c.Options {
			if c.Options[j].SkillOptions == nil {
				c.Options[j].SkillOptions = []SkillOption{}
			}
		}
	}
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := d
	out.Speakers = make([]Speaker, len(d.Speakers))
	for i, s := range d.Speakers {
		out.Speakers[i] = s.Clone()
	}
	out.Participants = append([]Participant{}, d.Participants...)
	out.PendingRolls = make([]PendingRoll, len(d.PendingRolls))
	for i, r := range d.PendingRolls {
		out.PendingRolls[i] = r.Clone()
	}
	out.RollHistory = append([]RollResult{}, d.RollHistory...)
	out.ActiveChallenges = make([]Challenge, len(d.ActiveChallenges))
	for i, c := range d.ActiveChallenges {
		out.ActiveChallenges[i] = c.Clone()
	}
	return out
}

// Clone returns a copy of s that shares no slices with it.
func (s Speaker) Clone() Speaker {
	out := s
	out.AltImages = append([]string{}, s.AltImages...)
	return out
}

// Clone returns a copy of r that shares no pointers with it.
func (r PendingRoll) Clone() PendingRoll {
	out := r
	out.DC = cloneInt(r.DC)
	return out
}

// Clone returns a copy of c that shares no slices with it.
func (c Challenge) Clone() Challenge {
	out := c
	out.Options = make([]ChallengeOption, len(c.Options))
	for i, option := range c.Options {
		skills := make([]SkillOption, len(option.SkillOptions))
		for j, skill := range option.SkillOptions {
			skill.DC = cloneInt(skill.DC)
			skills[j] = skill
		}
		out.Options[i] = ChallengeOption{Description: option.Description, SkillOptions: skills}
	}
	return out
}

// Speaker returns the speaker with id.
func (d Document) Speaker(id string) (Speaker, bool) {
	for _, s := range d.Speakers {
		if s.ID == id {
			return s, true
		}
	}
	return Speaker{}, false
}

// Participant returns the participant with id.
func (d Document) Participant(id string) (Participant, bool) {
	for _, p := range d.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// PendingRoll returns the pending roll with id.
func (d Document) PendingRoll(id string) (PendingRoll, bool) {
	for _, r := range d.PendingRolls {
		if r.ID == id {
			return r, true
		}
	}
	return PendingRoll{}, false
}

// Challenge returns the active challenge with id.
func (d Document) Challenge(id string) (Challenge, bool) {
	for _, c := range d.ActiveChallenges {
		if c.ID == id {
			return c.Clone(), true
		}
	}
	return Challenge{}, false
}

// IntPtr returns a pointer to v, for DC literals.
func IntPtr(v int) *int {
	return &v
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
