package monetization

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pulselive/backend/internal/models"
)

// Repository persists monetary events and the revenue ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a monetization repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertDonation writes the donation and its revenue entry atomically.
func (r *Repository) InsertDonation(ctx context.Context, d *models.Donation, entry *models.RevenueEntry) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO donations (id, stream_id, user_id, amount_cents, currency, message, anonymous)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
			RETURNING id, created_at`
		if err := tx.QueryRow(ctx, q, d.StreamID, d.UserID, d.AmountCents, d.Currency, d.Message, d.Anonymous).
			Scan(&d.ID, &d.CreatedAt); err != nil {
			return err
		}
		entry.SourceID = d.ID
		return insertRevenueEntry(ctx, tx, entry)
	})
}

// InsertSuperChat writes the super-chat, its chat ledger message and its
// revenue entry atomically.
func (r *Repository) InsertSuperChat(ctx context.Context, sc *models.SuperChat, entry *models.RevenueEntry, chat *models.ChatMessage) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO super_chats (id, stream_id, user_id, amount_cents, currency, message, tier, pin_seconds)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at`
		if err := tx.QueryRow(ctx, q, sc.StreamID, sc.UserID, sc.AmountCents, sc.Currency, sc.Message, sc.Tier, sc.PinSeconds).
			Scan(&sc.ID, &sc.CreatedAt); err != nil {
			return err
		}
		const chatQ = `INSERT INTO chat_messages (id, stream_id, user_id, text, type)
			VALUES (gen_random_uuid(), $1, $2, $3, $4)
			RETURNING id, created_at`
		if err := tx.QueryRow(ctx, chatQ, chat.StreamID, chat.UserID, chat.Text, chat.Type).
			Scan(&chat.ID, &chat.CreatedAt); err != nil {
			return err
		}
		entry.SourceID = sc.ID
		return insertRevenueEntry(ctx, tx, entry)
	})
}

// InsertSubscription writes the subscription and its revenue entry
// atomically.
func (r *Repository) InsertSubscription(ctx context.Context, sub *models.Subscription, entry *models.RevenueEntry) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const q = `INSERT INTO subscriptions (id, stream_id, user_id, tier, amount_cents, currency, gift_to)
			VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6)
			RETURNING id, created_at`
		if err := tx.QueryRow(ctx, q, sub.StreamID, sub.UserID, sub.Tier, sub.AmountCents, sub.Currency, sub.GiftTo).
			Scan(&sub.ID, &sub.CreatedAt); err != nil {
			return err
		}
		entry.SourceID = sub.ID
		return insertRevenueEntry(ctx, tx, entry)
	})
}

func insertRevenueEntry(ctx context.Context, tx pgx.Tx, entry *models.RevenueEntry) error {
	const q = `INSERT INTO revenue_entries (id, stream_id, entry_type, source_id, user_id, amount_cents, platform_fee_cents, creator_earnings_cents)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	return tx.QueryRow(ctx, q, entry.StreamID, entry.EntryType, entry.SourceID, entry.UserID,
		entry.AmountCents, entry.PlatformFeeCents, entry.CreatorEarningsCents).
		Scan(&entry.ID, &entry.CreatedAt)
}

// SumRevenue aggregates matching revenue entries per instrument. Unknown
// streams and empty windows naturally produce an all-zero breakdown.
func (r *Repository) SumRevenue(ctx context.Context, streamID uuid.UUID, q RevenueQuery) (*Breakdown, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT entry_type, COUNT(*), COALESCE(SUM(amount_cents), 0),
		COALESCE(SUM(platform_fee_cents), 0), COALESCE(SUM(creator_earnings_cents), 0)
		FROM revenue_entries WHERE stream_id = $1`)
	args := []any{streamID}

	if q.Since != nil {
		args = append(args, *q.Since)
		fmt.Fprintf(&sb, " AND created_at >= $%d", len(args))
	}
	if q.Until != nil {
		args = append(args, *q.Until)
		fmt.Fprintf(&sb, " AND created_at < $%d", len(args))
	}
	if q.EntryType != nil {
		args = append(args, *q.EntryType)
		fmt.Fprintf(&sb, " AND entry_type = $%d", len(args))
	}
	if q.UserID != nil {
		args = append(args, *q.UserID)
		fmt.Fprintf(&sb, " AND user_id = $%d", len(args))
	}
	if q.MinAmount != nil {
		args = append(args, *q.MinAmount)
		fmt.Fprintf(&sb, " AND amount_cents >= $%d", len(args))
	}
	if q.MaxAmount != nil {
		args = append(args, *q.MaxAmount)
		fmt.Fprintf(&sb, " AND amount_cents <= $%d", len(args))
	}
	sb.WriteString(" GROUP BY entry_type")

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var b Breakdown
	for rows.Next() {
		var t models.RevenueType
		var total InstrumentTotal
		if err := rows.Scan(&t, &total.Count, &total.GrossCents, &total.FeeCents, &total.EarningsCents); err != nil {
			return nil, err
		}
		switch t {
		case models.RevenueDonation:
			b.Donations = total
		case models.RevenueSuperChat:
			b.SuperChats = total
		case models.RevenueSubscription:
			b.Subscriptions = total
		}
		b.Count += total.Count
		b.GrossCents += total.GrossCents
		b.FeeCents += total.FeeCents
		b.EarningsCents += total.EarningsCents
	}
	return &b, rows.Err()
}
