// Package engagement holds the append-only chat ledger and the
// uniqueness-enforced reaction aggregate for every stream.
package engagement

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulselive/backend/internal/broadcast"
	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/pkg/apperr"
)

const maxChatLength = 500

// Store is the persistence boundary for the ledger. InsertReaction must
// fail with Conflict when an active reaction already exists for the pair.
type Store interface {
	InsertChat(ctx context.Context, msg *models.ChatMessage) error
	ListChat(ctx context.Context, streamID uuid.UUID, q ChatQuery) ([]models.ChatMessage, error)
	InsertReaction(ctx context.Context, reaction *models.Reaction) error
	DeleteReaction(ctx context.Context, streamID, userID uuid.UUID) (bool, error)
	ListReactions(ctx context.Context, streamID uuid.UUID) ([]models.Reaction, error)
	CountReactionsByType(ctx context.Context, streamID uuid.UUID) (map[models.ReactionType]int, error)
}

// StreamDirectory resolves stream existence and chat settings. Satisfied
// by the stream registry.
type StreamDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*models.LiveStream, error)
}

// Ledger applies and serves chat and reaction events.
type Ledger struct {
	store   Store
	streams StreamDirectory
	pub     broadcast.Publisher
	logger  *zap.Logger
}

// NewLedger creates an engagement ledger. pub may be nil.
func NewLedger(store Store, streams StreamDirectory, pub broadcast.Publisher, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, streams: streams, pub: pub, logger: logger}
}

// AppendChat validates and appends one immutable chat message.
func (l *Ledger) AppendChat(ctx context.Context, streamID, userID uuid.UUID, text string, msgType models.ChatType) (*models.ChatMessage, error) {
	if text == "" {
		return nil, apperr.Validation("message text is required")
	}
	if len(text) > maxChatLength {
		return nil, apperr.Validation("message text exceeds 500 characters")
	}
	if msgType == "" {
		msgType = models.ChatText
	}
	if !models.ValidChatType(msgType) {
		return nil, apperr.Validation("unrecognized chat message type")
	}

	stream, err := l.streams.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}
	if !stream.ChatEnabled {
		return nil, apperr.Conflict("chat is disabled for this stream")
	}

	msg := &models.ChatMessage{StreamID: streamID, UserID: userID, Text: text, Type: msgType}
	if err := l.store.InsertChat(ctx, msg); err != nil {
		return nil, err
	}
	if l.pub != nil {
		l.pub.Publish(streamID, "chat_message", msg)
	}
	return msg, nil
}

// AddReaction records the user's active reaction on a stream. A second
// reaction for the same pair conflicts until the first is removed.
func (l *Ledger) AddReaction(ctx context.Context, streamID, userID uuid.UUID, rType models.ReactionType) (*models.Reaction, error) {
	if !models.ValidReactionType(rType) {
		return nil, apperr.Validation("unrecognized reaction type")
	}
	if _, err := l.streams.Get(ctx, streamID); err != nil {
		return nil, err
	}

	reaction := &models.Reaction{StreamID: streamID, UserID: userID, Type: rType}
	if err := l.store.InsertReaction(ctx, reaction); err != nil {
		return nil, err
	}
	if l.pub != nil {
		l.pub.Publish(streamID, "reaction_added", reaction)
	}
	return reaction, nil
}

// RemoveReaction clears the caller's active reaction.
func (l *Ledger) RemoveReaction(ctx context.Context, streamID, userID uuid.UUID) error {
	removed, err := l.store.DeleteReaction(ctx, streamID, userID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.NotFound("no active reaction to remove")
	}
	if l.pub != nil {
		l.pub.Publish(streamID, "reaction_removed", map[string]any{
			"stream_id": streamID,
			"user_id":   userID,
		})
	}
	return nil
}

// ListChat returns chat messages matching q. Tolerant read: an unknown
// stream yields an empty list.
func (l *Ledger) ListChat(ctx context.Context, streamID uuid.UUID, q ChatQuery) ([]models.ChatMessage, error) {
	return l.store.ListChat(ctx, streamID, q.normalize())
}

// ListReactions returns the active reactions on a stream. Tolerant read.
func (l *Ledger) ListReactions(ctx context.Context, streamID uuid.UUID) ([]models.Reaction, error) {
	return l.store.ListReactions(ctx, streamID)
}

// ReactionCounts returns active reaction tallies per type. Tolerant read.
func (l *Ledger) ReactionCounts(ctx context.Context, streamID uuid.UUID) (map[models.ReactionType]int, error) {
	return l.store.CountReactionsByType(ctx, streamID)
}
