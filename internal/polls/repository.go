package polls

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/pkg/apperr"
)

const pgUniqueViolation = "23505"

// Repository persists polls, options and votes in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a polls repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreatePoll inserts a poll and its options in one transaction.
func (r *Repository) CreatePoll(ctx context.Context, p *models.Poll, options []models.PollOption) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const pollQ = `INSERT INTO polls (id, stream_id, question, allow_multiple, is_active)
		VALUES (gen_random_uuid(), $1, $2, $3, TRUE)
		RETURNING id, created_at`
	if err := tx.QueryRow(ctx, pollQ, p.StreamID, p.Question, p.AllowMultiple).Scan(&p.ID, &p.CreatedAt); err != nil {
		return err
	}
	const optQ = `INSERT INTO poll_options (id, poll_id, position, label, votes)
		VALUES (gen_random_uuid(), $1, $2, $3, 0)
		RETURNING id`
	for i := range options {
		options[i].PollID = p.ID
		if err := tx.QueryRow(ctx, optQ, p.ID, options[i].Position, options[i].Label).Scan(&options[i].ID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetPoll returns a poll and its ordered options, or NotFound.
func (r *Repository) GetPoll(ctx context.Context, id uuid.UUID) (*models.Poll, []models.PollOption, error) {
	var p models.Poll
	err := r.pool.QueryRow(ctx,
		`SELECT id, stream_id, question, allow_multiple, is_active, created_at, ended_at FROM polls WHERE id = $1`, id).
		Scan(&p.ID, &p.StreamID, &p.Question, &p.AllowMultiple, &p.IsActive, &p.CreatedAt, &p.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, apperr.NotFound("poll not found")
	}
	if err != nil {
		return nil, nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, poll_id, position, label, votes FROM poll_options WHERE poll_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var options []models.PollOption
	for rows.Next() {
		var opt models.PollOption
		if err := rows.Scan(&opt.ID, &opt.PollID, &opt.Position, &opt.Label, &opt.Votes); err != nil {
			return nil, nil, err
		}
		options = append(options, opt)
	}
	return &p, options, rows.Err()
}

// ListByStream returns a stream's polls, newest first.
func (r *Repository) ListByStream(ctx context.Context, streamID uuid.UUID) ([]models.Poll, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, stream_id, question, allow_multiple, is_active, created_at, ended_at
		 FROM polls WHERE stream_id = $1 ORDER BY created_at DESC`, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Poll
	for rows.Next() {
		var p models.Poll
		if err := rows.Scan(&p.ID, &p.StreamID, &p.Question, &p.AllowMultiple, &p.IsActive, &p.CreatedAt, &p.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePoll applies apply against the poll row under its row lock.
func (r *Repository) UpdatePoll(ctx context.Context, id uuid.UUID, apply func(*models.Poll) error) (*models.Poll, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var p models.Poll
	err = tx.QueryRow(ctx,
		`SELECT id, stream_id, question, allow_multiple, is_active, created_at, ended_at
		 FROM polls WHERE id = $1 FOR UPDATE`, id).
		Scan(&p.ID, &p.StreamID, &p.Question, &p.AllowMultiple, &p.IsActive, &p.CreatedAt, &p.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("poll not found")
	}
	if err != nil {
		return nil, err
	}

	if err := apply(&p); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE polls SET is_active = $2, ended_at = $3 WHERE id = $1`, p.ID, p.IsActive, p.EndedAt); err != nil {
		return nil, err
	}
	return &p, tx.Commit(ctx)
}

// HasVoted reports whether the user already voted on the poll.
func (r *Repository) HasVoted(ctx context.Context, pollID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM poll_votes WHERE poll_id = $1 AND user_id = $2)`, pollID, userID).
		Scan(&exists)
	return exists, err
}

// RecordVote inserts the vote and bumps the chosen option counters in one
// transaction holding the poll's row lock. The (poll_id, user_id) primary
// key turns a duplicate vote into a Conflict; an option id outside the
// poll rolls the whole vote back with Validation.
func (r *Repository) RecordVote(ctx context.Context, vote *models.PollVote) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var isActive bool
	err = tx.QueryRow(ctx, `SELECT is_active FROM polls WHERE id = $1 FOR UPDATE`, vote.PollID).Scan(&isActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("poll not found")
	}
	if err != nil {
		return err
	}
	if !isActive {
		return apperr.Conflict("poll closed")
	}

	const voteQ = `INSERT INTO poll_votes (poll_id, user_id, option_ids) VALUES ($1, $2, $3)
		RETURNING created_at`
	err = tx.QueryRow(ctx, voteQ, vote.PollID, vote.UserID, vote.OptionIDs).Scan(&vote.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return apperr.Conflict("user has already voted on this poll")
	}
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE poll_options SET votes = votes + 1 WHERE poll_id = $1 AND id = ANY($2)`,
		vote.PollID, vote.OptionIDs)
	if err != nil {
		return err
	}
	if int(tag.RowsAffected()) != len(vote.OptionIDs) {
		return apperr.Validation("option does not belong to this poll")
	}
	return tx.Commit(ctx)
}
