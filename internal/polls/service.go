// Package polls runs viewer polls: lifecycle, per-option tallying and the
// one-vote-per-user invariant.
package polls

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulselive/backend/internal/broadcast"
	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/pkg/apperr"
)

// Store is the persistence boundary for polls. RecordVote must apply the
// vote and its counter increments atomically, scoped to the poll's key.
type Store interface {
	CreatePoll(ctx context.Context, p *models.Poll, options []models.PollOption) error
	GetPoll(ctx context.Context, id uuid.UUID) (*models.Poll, []models.PollOption, error)
	ListByStream(ctx context.Context, streamID uuid.UUID) ([]models.Poll, error)
	UpdatePoll(ctx context.Context, id uuid.UUID, apply func(*models.Poll) error) (*models.Poll, error)
	HasVoted(ctx context.Context, pollID, userID uuid.UUID) (bool, error)
	RecordVote(ctx context.Context, vote *models.PollVote) error
}

// StreamDirectory resolves a poll's parent stream for ownership checks.
type StreamDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*models.LiveStream, error)
}

// Engine drives poll lifecycle and voting.
type Engine struct {
	store   Store
	streams StreamDirectory
	pub     broadcast.Publisher
	logger  *zap.Logger
}

// NewEngine creates a poll engine. pub may be nil.
func NewEngine(store Store, streams StreamDirectory, pub broadcast.Publisher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, streams: streams, pub: pub, logger: logger}
}

// CreatePoll opens a new active poll on a stream (owner-only).
func (e *Engine) CreatePoll(ctx context.Context, streamID, callerID uuid.UUID, question string, optionLabels []string, allowMultiple bool) (*models.Poll, []models.PollOption, error) {
	if question == "" {
		return nil, nil, apperr.Validation("question is required")
	}
	if len(optionLabels) < models.PollMinOptions || len(optionLabels) > models.PollMaxOptions {
		return nil, nil, apperr.Validation(fmt.Sprintf("polls need between %d and %d options", models.PollMinOptions, models.PollMaxOptions))
	}
	for _, label := range optionLabels {
		if label == "" {
			return nil, nil, apperr.Validation("option labels must not be empty")
		}
	}

	stream, err := e.streams.Get(ctx, streamID)
	if err != nil {
		return nil, nil, err
	}
	if stream.OwnerID != callerID {
		return nil, nil, apperr.Unauthorized("only the stream owner may create polls")
	}

	poll := &models.Poll{StreamID: streamID, Question: question, AllowMultiple: allowMultiple, IsActive: true}
	options := make([]models.PollOption, len(optionLabels))
	for i, label := range optionLabels {
		options[i] = models.PollOption{Position: i, Label: label}
	}
	if err := e.store.CreatePoll(ctx, poll, options); err != nil {
		return nil, nil, err
	}

	if e.pub != nil {
		e.pub.Publish(streamID, "poll_created", map[string]any{
			"poll_id":  poll.ID,
			"question": poll.Question,
			"options":  options,
		})
	}
	return poll, options, nil
}

// Vote records a user's one immutable vote. Checks run in the order:
// poll exists, poll open, no prior vote, option membership and count.
func (e *Engine) Vote(ctx context.Context, pollID, userID uuid.UUID, optionIDs []uuid.UUID) (*models.PollVote, error) {
	poll, options, err := e.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if !poll.IsActive {
		return nil, apperr.Conflict("poll closed")
	}

	voted, err := e.store.HasVoted(ctx, pollID, userID)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, apperr.Conflict("user has already voted on this poll")
	}

	if err := validateSelection(poll, options, optionIDs); err != nil {
		return nil, err
	}

	vote := &models.PollVote{PollID: pollID, UserID: userID, OptionIDs: optionIDs}
	if err := e.store.RecordVote(ctx, vote); err != nil {
		return nil, err
	}

	if e.pub != nil {
		e.pub.Publish(poll.StreamID, "poll_vote", map[string]any{
			"poll_id":    pollID,
			"option_ids": optionIDs,
		})
	}
	return vote, nil
}

// ClosePoll deactivates a poll (owner-only). Further votes conflict.
func (e *Engine) ClosePoll(ctx context.Context, pollID, callerID uuid.UUID) (*models.Poll, error) {
	current, _, err := e.store.GetPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	stream, err := e.streams.Get(ctx, current.StreamID)
	if err != nil {
		return nil, err
	}
	if stream.OwnerID != callerID {
		return nil, apperr.Unauthorized("only the stream owner may close polls")
	}

	poll, err := e.store.UpdatePoll(ctx, pollID, func(p *models.Poll) error {
		if !p.IsActive {
			return apperr.Conflict("poll is already closed")
		}
		now := time.Now().UTC()
		p.IsActive = false
		p.EndedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.pub != nil {
		e.pub.Publish(poll.StreamID, "poll_closed", map[string]any{"poll_id": poll.ID})
	}
	return poll, nil
}

// OptionStat is one option's tally within a poll's stats.
type OptionStat struct {
	ID         uuid.UUID `json:"id"`
	Label      string    `json:"label"`
	Votes      int       `json:"votes"`
	Percentage float64   `json:"percentage"`
}

// Stats is the derived tally view of a poll.
type Stats struct {
	PollID     uuid.UUID    `json:"poll_id"`
	Question   string       `json:"question"`
	IsActive   bool         `json:"is_active"`
	TotalVotes int          `json:"total_votes"`
	Options    []OptionStat `json:"options"`
}

// GetStats derives per-option percentages. Tolerant read: an unknown poll
// yields zero-valued stats, not an error.
func (e *Engine) GetStats(ctx context.Context, pollID uuid.UUID) (*Stats, error) {
	poll, options, err := e.store.GetPoll(ctx, pollID)
	if apperr.IsNotFound(err) {
		return &Stats{PollID: pollID, Options: []OptionStat{}}, nil
	}
	if err != nil {
		return nil, err
	}

	total := 0
	for _, opt := range options {
		total += opt.Votes
	}
	stats := &Stats{
		PollID:     poll.ID,
		Question:   poll.Question,
		IsActive:   poll.IsActive,
		TotalVotes: total,
		Options:    make([]OptionStat, len(options)),
	}
	for i, opt := range options {
		pct := 0.0
		if total > 0 {
			pct = float64(opt.Votes) / float64(total) * 100
		}
		stats.Options[i] = OptionStat{ID: opt.ID, Label: opt.Label, Votes: opt.Votes, Percentage: pct}
	}
	return stats, nil
}

// ListByStream returns a stream's polls. Tolerant read.
func (e *Engine) ListByStream(ctx context.Context, streamID uuid.UUID) ([]models.Poll, error) {
	return e.store.ListByStream(ctx, streamID)
}

func validateSelection(poll *models.Poll, options []models.PollOption, optionIDs []uuid.UUID) error {
	if len(optionIDs) == 0 {
		return apperr.Validation("at least one option is required")
	}
	if !poll.AllowMultiple && len(optionIDs) != 1 {
		return apperr.Validation("this poll accepts exactly one option")
	}
	if poll.AllowMultiple && len(optionIDs) > models.PollMaxSelections {
		return apperr.Validation(fmt.Sprintf("at most %d options may be selected", models.PollMaxSelections))
	}

	valid := make(map[uuid.UUID]bool, len(options))
	for _, opt := range options {
		valid[opt.ID] = true
	}
	seen := make(map[uuid.UUID]bool, len(optionIDs))
	for _, id := range optionIDs {
		if !valid[id] {
			return apperr.Validation("option does not belong to this poll")
		}
		if seen[id] {
			return apperr.Validation("duplicate option selected")
		}
		seen[id] = true
	}
	return nil
}
