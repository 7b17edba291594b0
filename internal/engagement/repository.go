package engagement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/pkg/apperr"
)

// pgUniqueViolation is the PostgreSQL error code for a unique constraint hit.
const pgUniqueViolation = "23505"

// Repository persists chat messages and reactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an engagement repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertChat appends one chat message.
func (r *Repository) InsertChat(ctx context.Context, msg *models.ChatMessage) error {
	const q = `INSERT INTO chat_messages (id, stream_id, user_id, text, type)
		VALUES (gen_random_uuid(), $1, $2, $3, $4)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, msg.StreamID, msg.UserID, msg.Text, msg.Type).
		Scan(&msg.ID, &msg.CreatedAt)
}

// ListChat returns chat messages for a stream, AND-composing the supplied
// filters with sort and paging.
func (r *Repository) ListChat(ctx context.Context, streamID uuid.UUID, q ChatQuery) ([]models.ChatMessage, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, stream_id, user_id, text, type, created_at FROM chat_messages WHERE stream_id = $1`)
	args := []any{streamID}

	if q.Since != nil {
		args = append(args, *q.Since)
		fmt.Fprintf(&sb, " AND created_at >= $%d", len(args))
	}
	if q.Until != nil {
		args = append(args, *q.Until)
		fmt.Fprintf(&sb, " AND created_at < $%d", len(args))
	}
	if q.UserID != nil {
		args = append(args, *q.UserID)
		fmt.Fprintf(&sb, " AND user_id = $%d", len(args))
	}
	if q.Type != nil {
		args = append(args, *q.Type)
		fmt.Fprintf(&sb, " AND type = $%d", len(args))
	}
	dir := "DESC"
	if q.SortAsc {
		dir = "ASC"
	}
	fmt.Fprintf(&sb, " ORDER BY created_at %s LIMIT $%d OFFSET $%d", dir, len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.StreamID, &m.UserID, &m.Text, &m.Type, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertReaction records an active reaction. The (stream_id, user_id)
// primary key turns a duplicate into a Conflict.
func (r *Repository) InsertReaction(ctx context.Context, reaction *models.Reaction) error {
	const q = `INSERT INTO reactions (stream_id, user_id, type) VALUES ($1, $2, $3)
		RETURNING created_at`
	err := r.pool.QueryRow(ctx, q, reaction.StreamID, reaction.UserID, reaction.Type).
		Scan(&reaction.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return apperr.Conflict("user already has an active reaction on this stream")
	}
	return err
}

// DeleteReaction removes the user's active reaction, reporting whether
// one existed.
func (r *Repository) DeleteReaction(ctx context.Context, streamID, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM reactions WHERE stream_id = $1 AND user_id = $2`, streamID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListReactions returns all active reactions on a stream.
func (r *Repository) ListReactions(ctx context.Context, streamID uuid.UUID) ([]models.Reaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT stream_id, user_id, type, created_at FROM reactions WHERE stream_id = $1 ORDER BY created_at`,
		streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Reaction
	for rows.Next() {
		var re models.Reaction
		if err := rows.Scan(&re.StreamID, &re.UserID, &re.Type, &re.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, rows.Err()
}

// CountReactionsByType tallies active reactions per type.
func (r *Repository) CountReactionsByType(ctx context.Context, streamID uuid.UUID) (map[models.ReactionType]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT type, COUNT(*) FROM reactions WHERE stream_id = $1 GROUP BY type`, streamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[models.ReactionType]int)
	for rows.Next() {
		var t models.ReactionType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		out[t] = n
	}
	return out, rows.Err()
}
