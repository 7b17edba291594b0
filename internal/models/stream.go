package models

import (
	"time"

	"github.com/google/uuid"
)

// StreamStatus is the lifecycle state of a live stream.
type StreamStatus string

const (
	StreamScheduled StreamStatus = "scheduled"
	StreamLive      StreamStatus = "live"
	StreamPaused    StreamStatus = "paused"
	StreamEnded     StreamStatus = "ended"
	StreamCancelled StreamStatus = "cancelled"
)

// LiveStream represents one live broadcast and its viewer-count aggregate.
type LiveStream struct {
	ID              uuid.UUID    `json:"id"`
	OwnerID         uuid.UUID    `json:"owner_id"`
	ChannelID       uuid.UUID    `json:"channel_id"`
	Title           string       `json:"title"`
	Status          StreamStatus `json:"status"`
	StreamKey       string       `json:"stream_key,omitempty"`
	ChatEnabled     bool         `json:"chat_enabled"`
	ViewerCount     int          `json:"viewer_count"`
	PeakViewerCount int          `json:"peak_viewer_count"`
	ActualStart     *time.Time   `json:"actual_start,omitempty"`
	ActualEnd       *time.Time   `json:"actual_end,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}
