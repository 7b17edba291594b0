// Package monetization takes in donations, super-chats and subscriptions,
// computes exact fee splits and maintains the revenue ledger.
package monetization

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulselive/backend/internal/broadcast"
	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/pkg/apperr"
)

// Store is the persistence boundary. Each insert writes the instrument
// row and its revenue entry in one transaction.
type Store interface {
	InsertDonation(ctx context.Context, d *models.Donation, entry *models.RevenueEntry) error
	InsertSuperChat(ctx context.Context, sc *models.SuperChat, entry *models.RevenueEntry, chat *models.ChatMessage) error
	InsertSubscription(ctx context.Context, sub *models.Subscription, entry *models.RevenueEntry) error
	SumRevenue(ctx context.Context, streamID uuid.UUID, q RevenueQuery) (*Breakdown, error)
}

// StreamDirectory resolves stream existence and live status.
type StreamDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*models.LiveStream, error)
}

// Engine processes monetary events against the revenue ledger.
type Engine struct {
	store   Store
	streams StreamDirectory
	fees    FeeSchedule
	pub     broadcast.Publisher
	logger  *zap.Logger
}

// NewEngine creates a monetization engine. pub may be nil.
func NewEngine(store Store, streams StreamDirectory, fees FeeSchedule, pub broadcast.Publisher, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fees == nil {
		fees = DefaultFeeSchedule()
	}
	return &Engine{store: store, streams: streams, fees: fees, pub: pub, logger: logger}
}

// ProcessDonation records a tip on a live stream and its revenue entry.
func (e *Engine) ProcessDonation(ctx context.Context, streamID, userID uuid.UUID, amountCents int64, currency models.Currency, message string, anonymous bool) (*models.Donation, *models.RevenueEntry, error) {
	if err := e.validateAmount(amountCents, currency); err != nil {
		return nil, nil, err
	}
	if err := e.requireLive(ctx, streamID); err != nil {
		return nil, nil, err
	}

	d := &models.Donation{
		StreamID:    streamID,
		UserID:      userID,
		AmountCents: amountCents,
		Currency:    currency,
		Message:     message,
		Anonymous:   anonymous,
	}
	entry := e.newEntry(streamID, userID, models.RevenueDonation, amountCents)
	if err := e.store.InsertDonation(ctx, d, entry); err != nil {
		return nil, nil, err
	}

	if e.pub != nil {
		payload := map[string]any{
			"donation_id":  d.ID,
			"amount_cents": d.AmountCents,
			"currency":     d.Currency,
			"message":      d.Message,
		}
		if !d.Anonymous {
			payload["user_id"] = d.UserID
		}
		e.pub.Publish(streamID, "donation_received", payload)
	}
	return d, entry, nil
}

// ProcessSuperChat records a paid highlighted message. The tier and pin
// duration derive from the amount, and the message lands in the chat
// ledger as a super_chat entry.
func (e *Engine) ProcessSuperChat(ctx context.Context, streamID, userID uuid.UUID, amountCents int64, currency models.Currency, message string) (*models.SuperChat, *models.RevenueEntry, error) {
	if err := e.validateAmount(amountCents, currency); err != nil {
		return nil, nil, err
	}
	if message == "" {
		return nil, nil, apperr.Validation("super-chat message is required")
	}
	if err := e.requireLive(ctx, streamID); err != nil {
		return nil, nil, err
	}

	tier, pinSeconds := superChatTierFor(amountCents)
	sc := &models.SuperChat{
		StreamID:    streamID,
		UserID:      userID,
		AmountCents: amountCents,
		Currency:    currency,
		Message:     message,
		Tier:        tier,
		PinSeconds:  pinSeconds,
	}
	entry := e.newEntry(streamID, userID, models.RevenueSuperChat, amountCents)
	chat := &models.ChatMessage{StreamID: streamID, UserID: userID, Text: message, Type: models.ChatSuperChat}
	if err := e.store.InsertSuperChat(ctx, sc, entry, chat); err != nil {
		return nil, nil, err
	}

	if e.pub != nil {
		e.pub.Publish(streamID, "super_chat", map[string]any{
			"super_chat_id": sc.ID,
			"user_id":       sc.UserID,
			"amount_cents":  sc.AmountCents,
			"currency":      sc.Currency,
			"message":       sc.Message,
			"tier":          sc.Tier,
			"pin_seconds":   sc.PinSeconds,
		})
	}
	return sc, entry, nil
}

// ProcessSubscription records a channel membership purchase. Unlike the
// real-time instruments the stream only has to exist, not be live.
func (e *Engine) ProcessSubscription(ctx context.Context, streamID, userID uuid.UUID, tier models.SubscriptionTier, currency models.Currency, giftTo *uuid.UUID) (*models.Subscription, *models.RevenueEntry, error) {
	if !models.ValidSubscriptionTier(tier) {
		return nil, nil, apperr.Validation("unrecognized subscription tier")
	}
	if !models.ValidCurrency(currency) {
		return nil, nil, apperr.Validation("unrecognized currency")
	}
	if _, err := e.streams.Get(ctx, streamID); err != nil {
		return nil, nil, err
	}

	amountCents := subscriptionPriceCents[tier]
	sub := &models.Subscription{
		StreamID:    streamID,
		UserID:      userID,
		Tier:        tier,
		AmountCents: amountCents,
		Currency:    currency,
		GiftTo:      giftTo,
	}
	entry := e.newEntry(streamID, userID, models.RevenueSubscription, amountCents)
	if err := e.store.InsertSubscription(ctx, sub, entry); err != nil {
		return nil, nil, err
	}

	if e.pub != nil {
		payload := map[string]any{
			"subscription_id": sub.ID,
			"user_id":         sub.UserID,
			"tier":            sub.Tier,
		}
		if giftTo != nil {
			payload["gift_to"] = *giftTo
		}
		e.pub.Publish(streamID, "new_subscription", payload)
	}
	return sub, entry, nil
}

// GetRevenue sums matching revenue entries into a per-instrument
// breakdown. Tolerant read: an unknown stream or an empty window yields
// an all-zero breakdown, never an error.
func (e *Engine) GetRevenue(ctx context.Context, streamID uuid.UUID, q RevenueQuery) (*Breakdown, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	return e.store.SumRevenue(ctx, streamID, q)
}

func (e *Engine) validateAmount(amountCents int64, currency models.Currency) error {
	if amountCents <= 0 {
		return apperr.Validation("amount must be positive")
	}
	if !models.ValidCurrency(currency) {
		return apperr.Validation("unrecognized currency")
	}
	return nil
}

func (e *Engine) requireLive(ctx context.Context, streamID uuid.UUID) error {
	stream, err := e.streams.Get(ctx, streamID)
	if err != nil {
		return err
	}
	if stream.Status != models.StreamLive {
		return apperr.Conflict("stream is not live")
	}
	return nil
}

func (e *Engine) newEntry(streamID, userID uuid.UUID, t models.RevenueType, amountCents int64) *models.RevenueEntry {
	fee, earnings := e.fees.Split(t, amountCents)
	return &models.RevenueEntry{
		StreamID:             streamID,
		EntryType:            t,
		UserID:               userID,
		AmountCents:          amountCents,
		PlatformFeeCents:     fee,
		CreatorEarningsCents: earnings,
	}
}

// RevenueQuery bundles the optional revenue filters; all supplied filters
// are AND-composed.
type RevenueQuery struct {
	Since     *time.Time
	Until     *time.Time
	EntryType *models.RevenueType
	UserID    *uuid.UUID
	MinAmount *int64
	MaxAmount *int64
}

func (q RevenueQuery) validate() error {
	if q.EntryType != nil {
		switch *q.EntryType {
		case models.RevenueDonation, models.RevenueSuperChat, models.RevenueSubscription:
		default:
			return apperr.Validation("unrecognized revenue entry type")
		}
	}
	if q.MinAmount != nil && q.MaxAmount != nil && *q.MinAmount > *q.MaxAmount {
		return apperr.Validation("min amount exceeds max amount")
	}
	return nil
}

// Matches reports whether an entry satisfies every supplied filter.
// Shared by the in-memory store used in tests.
func (q RevenueQuery) Matches(entry models.RevenueEntry) bool {
	if q.Since != nil && entry.CreatedAt.Before(*q.Since) {
		return false
	}
	if q.Until != nil && !entry.CreatedAt.Before(*q.Until) {
		return false
	}
	if q.EntryType != nil && entry.EntryType != *q.EntryType {
		return false
	}
	if q.UserID != nil && entry.UserID != *q.UserID {
		return false
	}
	if q.MinAmount != nil && entry.AmountCents < *q.MinAmount {
		return false
	}
	if q.MaxAmount != nil && entry.AmountCents > *q.MaxAmount {
		return false
	}
	return true
}

// InstrumentTotal aggregates one instrument's entries.
type InstrumentTotal struct {
	Count         int   `json:"count"`
	GrossCents    int64 `json:"gross_cents"`
	FeeCents      int64 `json:"fee_cents"`
	EarningsCents int64 `json:"earnings_cents"`
}

// Breakdown is the revenue summary for a stream, split by instrument.
type Breakdown struct {
	Donations     InstrumentTotal `json:"donations"`
	SuperChats    InstrumentTotal `json:"super_chats"`
	Subscriptions InstrumentTotal `json:"subscriptions"`
	GrossCents    int64           `json:"gross_cents"`
	FeeCents      int64           `json:"fee_cents"`
	EarningsCents int64           `json:"earnings_cents"`
	Count         int             `json:"count"`
}

// Add folds one entry into the breakdown.
func (b *Breakdown) Add(entry models.RevenueEntry) {
	var bucket *InstrumentTotal
	switch entry.EntryType {
	case models.RevenueDonation:
		bucket = &b.Donations
	case models.RevenueSuperChat:
		bucket = &b.SuperChats
	case models.RevenueSubscription:
		bucket = &b.Subscriptions
	default:
		return
	}
	bucket.Count++
	bucket.GrossCents += entry.AmountCents
	bucket.FeeCents += entry.PlatformFeeCents
	bucket.EarningsCents += entry.CreatorEarningsCents
	b.Count++
	b.GrossCents += entry.AmountCents
	b.FeeCents += entry.PlatformFeeCents
	b.EarningsCents += entry.CreatorEarningsCents
}
