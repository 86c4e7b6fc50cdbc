package session

import "strings"

// DeriveKey returns the history key for a conversation.
//
// Scene conversations share one history among all participants and are keyed
// by scene and session only: "<SCENE>_<session>". Without a scene the
// conversation is one-on-one and keyed by NPC, player and session:
// "<NPC>_<PLAYER>_<session>". Identifiers are upper-cased so inconsistent
// caller casing maps to the same key; the session id is kept verbatim.
//
// Keys are unambiguous as long as scene, NPC and player identifiers do not
// themselves contain '_'.
func DeriveKey(sceneID, npcID, playerID, sessionID string) string {
	if sceneID == "" {
		return strings.ToUpper(npcID) + "_" + strings.ToUpper(playerID) + "_" + sessionID
	}
	return strings.ToUpper(sceneID) + "_" + sessionID
}

// ConversationKey returns the key of the player/NPC conversation log. It is
// case-sensitive.
func ConversationKey(playerID, npcID string) string {
	return playerID + "-" + npcID
}

// MemoryKey returns the key of the player/NPC memory list. It is
// case-insensitive.
func MemoryKey(playerID, npcID string) string {
	return strings.ToUpper(playerID) + "-" + strings.ToUpper(npcID)
}
