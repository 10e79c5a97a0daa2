// Package ids derives deterministic record identifiers from platform ids.
package ids

import "github.com/google/uuid"

// FromString returns the name-based UUID of s. Equal inputs give equal ids.
func FromString(s string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(s)).String()
}

// Message identifies a platform message as seen by one agent.
func Message(platformID, agentID string) string {
	return FromString(platformID + "-" + agentID)
}

// Room identifies a chat as seen by one agent.
func Room(chatID, agentID string) string {
	return FromString(chatID + "-" + agentID)
}

// User identifies a platform sender.
func User(senderID string) string {
	return FromString(senderID)
}

// GenerateRoom is the room autonomous posts of account are recorded in.
func GenerateRoom(channel, account string) string {
	return FromString(channel + "_generate_room-" + account)
}
