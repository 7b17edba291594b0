package models

import (
	"time"

	"github.com/google/uuid"
)

// AnalyticsSnapshot is a periodic, append-only aggregate of a stream's
// engagement and revenue at a point in time.
type AnalyticsSnapshot struct {
	ID            uuid.UUID `json:"id"`
	StreamID      uuid.UUID `json:"stream_id"`
	ViewerCount   int       `json:"viewer_count"`
	ChatCount     int       `json:"chat_count"`
	ReactionCount int       `json:"reaction_count"`
	RevenueCents  int64     `json:"revenue_cents"`
	CapturedAt    time.Time `json:"captured_at"`
}
