// Package streams holds the stream registry: the canonical status state
// machine and viewer-count aggregate for every live broadcast.
package streams

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulselive/backend/internal/broadcast"
	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/pkg/apperr"
)

// Store is the persistence boundary for the registry. Update must apply
// its closure as an atomic read-modify-write scoped to the stream's key.
type Store interface {
	Create(ctx context.Context, s *models.LiveStream) error
	Get(ctx context.Context, id uuid.UUID) (*models.LiveStream, error)
	ListLive(ctx context.Context) ([]models.LiveStream, error)
	Update(ctx context.Context, id uuid.UUID, apply func(*models.LiveStream) error) (*models.LiveStream, error)
}

// StreamEndedHandler is called after a stream transitions to Ended, e.g.
// to enqueue a final report job.
type StreamEndedHandler func(streamID uuid.UUID)

// Registry is the stream status state machine.
type Registry struct {
	store   Store
	pub     broadcast.Publisher
	logger  *zap.Logger
	onEnded StreamEndedHandler
}

// NewRegistry creates a stream registry. pub may be nil.
func NewRegistry(store Store, pub broadcast.Publisher, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, pub: pub, logger: logger}
}

// SetStreamEndedHandler sets the post-stop callback.
func (r *Registry) SetStreamEndedHandler(fn StreamEndedHandler) { r.onEnded = fn }

// Create registers a new Scheduled stream with a generated ingest key.
func (r *Registry) Create(ctx context.Context, ownerID, channelID uuid.UUID, title string) (*models.LiveStream, error) {
	if title == "" {
		return nil, apperr.Validation("title is required")
	}
	s := &models.LiveStream{
		OwnerID:     ownerID,
		ChannelID:   channelID,
		Title:       title,
		Status:      models.StreamScheduled,
		StreamKey:   newStreamKey(),
		ChatEnabled: true,
	}
	if err := r.store.Create(ctx, s); err != nil {
		return nil, err
	}
	r.logger.Info("stream created", zap.String("stream_id", s.ID.String()), zap.String("owner_id", ownerID.String()))
	return s, nil
}

// Get returns a stream by id, or NotFound.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*models.LiveStream, error) {
	return r.store.Get(ctx, id)
}

// ListLive returns all live streams. Tolerant read: no matches is an
// empty list, never an error.
func (r *Registry) ListLive(ctx context.Context) ([]models.LiveStream, error) {
	return r.store.ListLive(ctx)
}

// Start transitions Scheduled, Paused or Ended to Live. A fresh session
// (anything but resume-from-Paused) stamps actual start.
func (r *Registry) Start(ctx context.Context, id, callerID uuid.UUID) (*models.LiveStream, error) {
	s, err := r.store.Update(ctx, id, func(s *models.LiveStream) error {
		if err := requireOwner(s, callerID); err != nil {
			return err
		}
		switch s.Status {
		case models.StreamLive:
			return apperr.Conflict("stream is already live")
		case models.StreamScheduled, models.StreamEnded:
			now := time.Now().UTC()
			s.ActualStart = &now
			s.ActualEnd = nil
		case models.StreamPaused:
			// resuming keeps the session's original start time
		default:
			return transitionConflict(s.Status, models.StreamLive)
		}
		s.Status = models.StreamLive
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(s, "stream_started")
	return s, nil
}

// Stop transitions Live or Paused to Ended and stamps the end time.
func (r *Registry) Stop(ctx context.Context, id, callerID uuid.UUID) (*models.LiveStream, error) {
	s, err := r.store.Update(ctx, id, func(s *models.LiveStream) error {
		if err := requireOwner(s, callerID); err != nil {
			return err
		}
		if s.Status != models.StreamLive && s.Status != models.StreamPaused {
			return apperr.Conflict("stream is not live")
		}
		now := time.Now().UTC()
		s.Status = models.StreamEnded
		s.ActualEnd = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(s, "stream_ended")
	if r.onEnded != nil {
		r.onEnded(s.ID)
	}
	return s, nil
}

// Pause transitions Live to Paused.
func (r *Registry) Pause(ctx context.Context, id, callerID uuid.UUID) (*models.LiveStream, error) {
	s, err := r.store.Update(ctx, id, func(s *models.LiveStream) error {
		if err := requireOwner(s, callerID); err != nil {
			return err
		}
		if s.Status != models.StreamLive {
			return transitionConflict(s.Status, models.StreamPaused)
		}
		s.Status = models.StreamPaused
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(s, "stream_paused")
	return s, nil
}

// Resume transitions Paused back to Live.
func (r *Registry) Resume(ctx context.Context, id, callerID uuid.UUID) (*models.LiveStream, error) {
	s, err := r.store.Update(ctx, id, func(s *models.LiveStream) error {
		if err := requireOwner(s, callerID); err != nil {
			return err
		}
		if s.Status != models.StreamPaused {
			return transitionConflict(s.Status, models.StreamLive)
		}
		s.Status = models.StreamLive
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(s, "stream_resumed")
	return s, nil
}

// Cancel transitions Scheduled or Live to Cancelled.
func (r *Registry) Cancel(ctx context.Context, id, callerID uuid.UUID) (*models.LiveStream, error) {
	s, err := r.store.Update(ctx, id, func(s *models.LiveStream) error {
		if err := requireOwner(s, callerID); err != nil {
			return err
		}
		if s.Status != models.StreamScheduled && s.Status != models.StreamLive {
			return transitionConflict(s.Status, models.StreamCancelled)
		}
		s.Status = models.StreamCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(s, "stream_cancelled")
	return s, nil
}

// UpdateViewerCount records the current audience size and ratchets the
// peak. Fed by the presence layer; not owner-gated.
func (r *Registry) UpdateViewerCount(ctx context.Context, id uuid.UUID, count int, at time.Time) (*models.LiveStream, error) {
	if count < 0 {
		return nil, apperr.Validation("viewer count must not be negative")
	}
	s, err := r.store.Update(ctx, id, func(s *models.LiveStream) error {
		s.ViewerCount = count
		if count > s.PeakViewerCount {
			s.PeakViewerCount = count
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if r.pub != nil {
		r.pub.Publish(s.ID, "viewer_count", map[string]any{
			"count":       s.ViewerCount,
			"peak":        s.PeakViewerCount,
			"observed_at": at.UTC(),
		})
	}
	return s, nil
}

// SetChatEnabled toggles chat for a stream (owner-only).
func (r *Registry) SetChatEnabled(ctx context.Context, id, callerID uuid.UUID, enabled bool) (*models.LiveStream, error) {
	s, err := r.store.Update(ctx, id, func(s *models.LiveStream) error {
		if err := requireOwner(s, callerID); err != nil {
			return err
		}
		s.ChatEnabled = enabled
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.publish(s, "chat_toggled")
	return s, nil
}

func (r *Registry) publish(s *models.LiveStream, event string) {
	if r.pub == nil {
		return
	}
	r.pub.Publish(s.ID, event, map[string]any{
		"stream_id":    s.ID,
		"status":       s.Status,
		"chat_enabled": s.ChatEnabled,
		"actual_start": s.ActualStart,
		"actual_end":   s.ActualEnd,
	})
}

func requireOwner(s *models.LiveStream, callerID uuid.UUID) error {
	if s.OwnerID != callerID {
		return apperr.Unauthorized("only the stream owner may do this")
	}
	return nil
}

func transitionConflict(from, to models.StreamStatus) error {
	return apperr.Conflict(fmt.Sprintf("cannot transition stream from %s to %s", from, to))
}

func newStreamKey() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "live_" + hex.EncodeToString(buf)
}
