package models

import (
	"time"

	"github.com/google/uuid"
)

// Poll option count bounds and the maximum selections on a multi-choice vote.
const (
	PollMinOptions    = 2
	PollMaxOptions    = 10
	PollMaxSelections = 5
)

// Poll represents a viewer poll attached to a stream.
type Poll struct {
	ID            uuid.UUID  `json:"id"`
	StreamID      uuid.UUID  `json:"stream_id"`
	Question      string     `json:"question"`
	AllowMultiple bool       `json:"allow_multiple"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
}

// PollOption is one choice within a poll with its vote tally.
type PollOption struct {
	ID       uuid.UUID `json:"id"`
	PollID   uuid.UUID `json:"poll_id"`
	Position int       `json:"position"`
	Label    string    `json:"label"`
	Votes    int       `json:"votes"`
}

// PollVote records a user's single, immutable vote on a poll.
type PollVote struct {
	PollID    uuid.UUID   `json:"poll_id"`
	UserID    uuid.UUID   `json:"user_id"`
	OptionIDs []uuid.UUID `json:"option_ids"`
	CreatedAt time.Time   `json:"created_at"`
}
