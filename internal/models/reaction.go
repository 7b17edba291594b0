package models

import (
	"time"

	"github.com/google/uuid"
)

// ReactionType is the kind of a viewer reaction.
type ReactionType string

const (
	ReactionLike  ReactionType = "like"
	ReactionLove  ReactionType = "love"
	ReactionLaugh ReactionType = "laugh"
	ReactionWow   ReactionType = "wow"
	ReactionClap  ReactionType = "clap"
	ReactionFire  ReactionType = "fire"
)

// ValidReactionType reports whether t is a recognized reaction type.
func ValidReactionType(t ReactionType) bool {
	switch t {
	case ReactionLike, ReactionLove, ReactionLaugh, ReactionWow, ReactionClap, ReactionFire:
		return true
	}
	return false
}

// Reaction is a viewer's active reaction on a stream. At most one row
// exists per (stream, user) pair; presence of the row means active.
type Reaction struct {
	StreamID  uuid.UUID    `json:"stream_id"`
	UserID    uuid.UUID    `json:"user_id"`
	Type      ReactionType `json:"type"`
	CreatedAt time.Time    `json:"created_at"`
}
