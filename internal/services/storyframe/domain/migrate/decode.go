package migrate

import (
	"encoding/json"
	"fmt"

	"github.com/louisbranch/storyframe/internal/services/storyframe/domain/document"
)

// decodeFields decodes each known field on its own so a single malformed
// field degrades to its empty value instead of failing the document.
func decodeFields(raw map[string]any, logf func(string, ...any)) (document.Document, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return document.Document{}, fmt.Errorf("encode migrated document: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return document.Document{}, fmt.Errorf("split migrated document: %w", err)
	}

	var doc document.Document
	targets := map[string]any{
		"activeJournal":    &doc.ActiveJournal,
		"activeSpeaker":    &doc.ActiveSpeaker,
		"speakers":         &doc.Speakers,
		"participants":     &doc.Participants,
		"pendingRolls":     &doc.PendingRolls,
		"rollHistory":      &doc.RollHistory,
		"activeChallenges": &doc.ActiveChallenges,
	}
	for key, target := range targets {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, target); err != nil {
			logf("migrate: field=%q is malformed, using empty value: %v", key, err)
			resetField(&doc, key)
		}
	}
	return doc, nil
}

func resetField(doc *document.Document, key string) {
	switch key {
	case "activeJournal":
		doc.ActiveJournal = ""
	case "activeSpeaker":
		doc.ActiveSpeaker = ""
	case "speakers":
		doc.Speakers = nil
	case "participants":
		doc.Participants = nil
	case "pendingRolls":
		doc.PendingRolls = nil
	case "rollHistory":
		doc.RollHistory = nil
	case "activeChallenges":
		doc.ActiveChallenges = nil
	}
}
