package migrate

import (
	"fmt"
	"time"
)

const legacyChallengeKey = "activeChallenge"

var rollCollectionKeys = []string{"participants", "pendingRolls", "rollHistory"}

// addRollCollections introduces the participant and roll sequences (v1 to v2).
func addRollCollections(raw map[string]any, _ time.Time) error {
	for _, key := range rollCollectionKeys {
		value, ok := raw[key]
		if !ok || value == nil {
			raw[key] = []any{}
			continue
		}
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("%s is %T, want list", key, value)
		}
	}
	return nil
}

func addRollCollectionsFallback(raw map[string]any) {
	for _, key := range rollCollectionKeys {
		raw[key] = []any{}
	}
}

// addSingleChallenge introduces the singular challenge slot (v2 to v3).
func addSingleChallenge(raw map[string]any, _ time.Time) error {
	if _, ok := raw[legacyChallengeKey]; !ok {
		raw[legacyChallengeKey] = nil
	}
	return nil
}

func addSingleChallengeFallback(raw map[string]any) {
	raw[legacyChallengeKey] = nil
}

// listActiveChallenges turns the singular challenge into the list of active
// challenges, stamping a fresh createdAt on a preserved value (v3 to v4).
func listActiveChallenges(raw map[string]any, now time.Time) error {
	value := raw[legacyChallengeKey]
	delete(raw, legacyChallengeKey)

	switch challenge := value.(type) {
	case nil:
		raw["activeChallenges"] = []any{}
	case map[string]any:
		converted := make(map[string]any, len(challenge)+1)
		for key, field := range challenge {
			converted[key] = field
		}
		converted["createdAt"] = now.UnixMilli()
		raw["activeChallenges"] = []any{converted}
	default:
		return fmt.Errorf("%s is %T, want object", legacyChallengeKey, value)
	}
	return nil
}

func listActiveChallengesFallback(raw map[string]any) {
	delete(raw, legacyChallengeKey)
	raw["activeChallenges"] = []any{}
}
