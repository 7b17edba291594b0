package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatType classifies a chat message.
type ChatType string

const (
	ChatText      ChatType = "text"
	ChatEmote     ChatType = "emote"
	ChatSystem    ChatType = "system"
	ChatSuperChat ChatType = "super_chat"
)

// ValidChatType reports whether t is a recognized chat message type.
func ValidChatType(t ChatType) bool {
	switch t {
	case ChatText, ChatEmote, ChatSystem, ChatSuperChat:
		return true
	}
	return false
}

// ChatMessage is one immutable chat ledger entry.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	StreamID  uuid.UUID `json:"stream_id"`
	UserID    uuid.UUID `json:"user_id"`
	Text      string    `json:"text"`
	Type      ChatType  `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}
