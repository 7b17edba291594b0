package analytics

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulselive/backend/internal/models"
)

// Repository reads engagement aggregates and persists snapshots in
// PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// appendWindow adds created_at bounds to a stream-scoped query.
func appendWindow(sb *strings.Builder, args []any, w Window) []any {
	if w.Since != nil {
		args = append(args, *w.Since)
		fmt.Fprintf(sb, " AND created_at >= $%d", len(args))
	}
	if w.Until != nil {
		args = append(args, *w.Until)
		fmt.Fprintf(sb, " AND created_at < $%d", len(args))
	}
	return args
}

func (r *Repository) CountChat(ctx context.Context, streamID uuid.UUID, w Window) (int, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT COUNT(*) FROM chat_messages WHERE stream_id = $1`)
	args := appendWindow(&sb, []any{streamID}, w)

	var n int
	err := r.pool.QueryRow(ctx, sb.String(), args...).Scan(&n)
	return n, err
}

// CountUniqueChatters counts distinct authors in the stream's chat log.
func (r *Repository) CountUniqueChatters(ctx context.Context, streamID uuid.UUID, w Window) (int, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT COUNT(DISTINCT user_id) FROM chat_messages WHERE stream_id = $1`)
	args := appendWindow(&sb, []any{streamID}, w)

	var n int
	err := r.pool.QueryRow(ctx, sb.String(), args...).Scan(&n)
	return n, err
}

func (r *Repository) CountReactions(ctx context.Context, streamID uuid.UUID, w Window) (map[models.ReactionType]int, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT type, COUNT(*) FROM reactions WHERE stream_id = $1`)
	args := appendWindow(&sb, []any{streamID}, w)
	sb.WriteString(" GROUP BY type")

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.ReactionType]int)
	for rows.Next() {
		var t models.ReactionType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

func (r *Repository) InsertSnapshot(ctx context.Context, snap *models.AnalyticsSnapshot) error {
	const q = `INSERT INTO analytics_snapshots (id, stream_id, viewer_count, chat_count, reaction_count, revenue_cents, captured_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
		RETURNING id`
	return r.pool.QueryRow(ctx, q,
		snap.StreamID, snap.ViewerCount, snap.ChatCount, snap.ReactionCount, snap.RevenueCents, snap.CapturedAt).
		Scan(&snap.ID)
}

func (r *Repository) ListSnapshots(ctx context.Context, streamID uuid.UUID, q SnapshotQuery) ([]models.AnalyticsSnapshot, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, stream_id, viewer_count, chat_count, reaction_count, revenue_cents, captured_at
		FROM analytics_snapshots WHERE stream_id = $1`)
	args := []any{streamID}

	if q.Since != nil {
		args = append(args, *q.Since)
		fmt.Fprintf(&sb, " AND captured_at >= $%d", len(args))
	}
	if q.Until != nil {
		args = append(args, *q.Until)
		fmt.Fprintf(&sb, " AND captured_at < $%d", len(args))
	}
	args = append(args, q.Limit)
	fmt.Fprintf(&sb, " ORDER BY captured_at ASC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []models.AnalyticsSnapshot
	for rows.Next() {
		var s models.AnalyticsSnapshot
		if err := rows.Scan(&s.ID, &s.StreamID, &s.ViewerCount, &s.ChatCount, &s.ReactionCount, &s.RevenueCents, &s.CapturedAt); err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}
