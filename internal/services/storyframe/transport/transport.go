// Package transport defines how storyframe peers reach the authority and how
// the authority reaches them.
//
// Every state-changing request travels to the single authority with
// ExecuteAsAuthority. The authority answers with ExecuteForEveryone (full
// state pushes) and ExecuteOnPeer (prompts for one user). Pushes are
// fire-and-forget: a peer that misses one catches up on the next.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
)

// Transport is the peer messaging layer.
type Transport interface {
	// ExecuteAsAuthority runs op on the authority and decodes its result into
	// reply, which may be nil.
	ExecuteAsAuthority(ctx context.Context, op string, args any, reply any) error
	// ExecuteForEveryone pushes op to every connected peer.
	ExecuteForEveryone(ctx context.Context, op string, payload any) error
	// ExecuteOnPeer pushes op to the peers of one user.
	ExecuteOnPeer(ctx context.Context, peerID string, op string, payload any) error
}

// Push operations sent from the authority to peers.
const (
	OpSyncState  = "syncState"
	OpPromptRoll = "promptRoll"
	OpNotice     = "notice"
)

// Authority operations peers may request.
const (
	OpGetState                        = "getState"
	OpUpdateSpeakers                  = "updateSpeakers"
	OpSetActiveSpeaker                = "setActiveSpeaker"
	OpAddSpeaker                      = "addSpeaker"
	OpRemoveSpeaker                   = "removeSpeaker"
	OpToggleSpeakerNameVisibility     = "toggleSpeakerNameVisibility"
	OpToggleSpeakerVisibility         = "toggleSpeakerVisibility"
	OpSetSpeakerAltImages             = "setSpeakerAltImages"
	OpClearAllSpeakers                = "clearAllSpeakers"
	OpSetActiveJournal                = "setActiveJournal"
	OpAddParticipant                  = "addParticipant"
	OpRemoveParticipant               = "removeParticipant"
	OpToggleParticipantNameVisibility = "toggleParticipantNameVisibility"
	OpClearAllParticipants            = "clearAllParticipants"
	OpRequestRoll                     = "requestRoll"
	OpAddPendingRoll                  = "addPendingRoll"
	OpRemovePendingRoll               = "removePendingRoll"
	OpClearPendingRollsForParticipant = "clearPendingRollsForParticipant"
	OpClearPendingRolls               = "clearPendingRolls"
	OpSubmitRollResult                = "submitRollResult"
	OpClearRollHistory                = "clearRollHistory"
	OpAddChallenge                    = "addChallenge"
	OpRemoveChallenge                 = "removeChallenge"
	OpClearAllChallenges              = "clearAllChallenges"
	OpSetActiveChallenge              = "setActiveChallenge"
	OpClearActiveChallenge            = "clearActiveChallenge"
	OpChangeScene                     = "changeScene"
)

// Decode copies value into reply through its JSON form, the way a reply
// crossing the wire would be decoded. A nil reply discards the value.
func Decode(value any, reply any) error {
	if reply == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode reply: %w", err)
		}
		data = encoded
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, reply); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
