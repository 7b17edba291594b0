package streams

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/pkg/apperr"
)

const streamColumns = `id, owner_id, channel_id, title, status, stream_key, chat_enabled,
	viewer_count, peak_viewer_count, actual_start, actual_end, created_at, updated_at`

// Repository persists live streams in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a live stream repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanStream(row pgx.Row) (*models.LiveStream, error) {
	var s models.LiveStream
	err := row.Scan(&s.ID, &s.OwnerID, &s.ChannelID, &s.Title, &s.Status, &s.StreamKey, &s.ChatEnabled,
		&s.ViewerCount, &s.PeakViewerCount, &s.ActualStart, &s.ActualEnd, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new stream in its initial state.
func (r *Repository) Create(ctx context.Context, s *models.LiveStream) error {
	const q = `INSERT INTO live_streams (id, owner_id, channel_id, title, status, stream_key, chat_enabled)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, s.OwnerID, s.ChannelID, s.Title, s.Status, s.StreamKey, s.ChatEnabled).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// Get returns a stream by id, or NotFound.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.LiveStream, error) {
	s, err := scanStream(r.pool.QueryRow(ctx, `SELECT `+streamColumns+` FROM live_streams WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("stream not found")
	}
	return s, err
}

// ListLive returns all currently live streams.
func (r *Repository) ListLive(ctx context.Context) ([]models.LiveStream, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+streamColumns+` FROM live_streams WHERE status = $1 ORDER BY actual_start DESC`,
		models.StreamLive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.LiveStream
	for rows.Next() {
		s, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Update runs apply against the stream row inside a transaction that holds
// the row lock, so concurrent mutations of the same stream serialize. An
// error from apply rolls back and propagates unchanged.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, apply func(*models.LiveStream) error) (*models.LiveStream, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	s, err := scanStream(tx.QueryRow(ctx,
		`SELECT `+streamColumns+` FROM live_streams WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("stream not found")
	}
	if err != nil {
		return nil, err
	}

	if err := apply(s); err != nil {
		return nil, err
	}

	const q = `UPDATE live_streams SET status = $2, chat_enabled = $3, viewer_count = $4,
		peak_viewer_count = $5, actual_start = $6, actual_end = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	if err := tx.QueryRow(ctx, q, s.ID, s.Status, s.ChatEnabled, s.ViewerCount,
		s.PeakViewerCount, s.ActualStart, s.ActualEnd).Scan(&s.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
