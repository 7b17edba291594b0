package models

import (
	"time"

	"github.com/google/uuid"
)

// Currency is an accepted settlement currency. Amounts are integer cents
// (minor units) so fee splits stay exact.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyJPY Currency = "JPY"
)

// ValidCurrency reports whether c is a recognized currency.
func ValidCurrency(c Currency) bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP, CurrencyJPY:
		return true
	}
	return false
}

// SubscriptionTier is a paid channel subscription level.
type SubscriptionTier string

const (
	TierBasic   SubscriptionTier = "basic"
	TierPremium SubscriptionTier = "premium"
	TierVIP     SubscriptionTier = "vip"
)

// ValidSubscriptionTier reports whether t is a recognized tier.
func ValidSubscriptionTier(t SubscriptionTier) bool {
	switch t {
	case TierBasic, TierPremium, TierVIP:
		return true
	}
	return false
}

// SuperChatTier is the highlight level of a super-chat, derived from the
// paid amount. Higher tiers pin the message for longer.
type SuperChatTier string

const (
	SuperChatBlue   SuperChatTier = "blue"
	SuperChatGreen  SuperChatTier = "green"
	SuperChatYellow SuperChatTier = "yellow"
	SuperChatOrange SuperChatTier = "orange"
	SuperChatRed    SuperChatTier = "red"
)

// RevenueType identifies the monetization instrument behind a revenue entry.
type RevenueType string

const (
	RevenueDonation     RevenueType = "donation"
	RevenueSuperChat    RevenueType = "super_chat"
	RevenueSubscription RevenueType = "subscription"
)

// Donation is a one-off tip to the stream owner.
type Donation struct {
	ID          uuid.UUID `json:"id"`
	StreamID    uuid.UUID `json:"stream_id"`
	UserID      uuid.UUID `json:"user_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    Currency  `json:"currency"`
	Message     string    `json:"message,omitempty"`
	Anonymous   bool      `json:"anonymous"`
	CreatedAt   time.Time `json:"created_at"`
}

// SuperChat is a paid, highlighted, time-boxed chat message.
type SuperChat struct {
	ID          uuid.UUID     `json:"id"`
	StreamID    uuid.UUID     `json:"stream_id"`
	UserID      uuid.UUID     `json:"user_id"`
	AmountCents int64         `json:"amount_cents"`
	Currency    Currency      `json:"currency"`
	Message     string        `json:"message"`
	Tier        SuperChatTier `json:"tier"`
	PinSeconds  int           `json:"pin_seconds"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Subscription is a recurring channel membership purchase, optionally
// gifted to another user.
type Subscription struct {
	ID          uuid.UUID        `json:"id"`
	StreamID    uuid.UUID        `json:"stream_id"`
	UserID      uuid.UUID        `json:"user_id"`
	Tier        SubscriptionTier `json:"tier"`
	AmountCents int64            `json:"amount_cents"`
	Currency    Currency         `json:"currency"`
	GiftTo      *uuid.UUID       `json:"gift_to,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// RevenueEntry is the single ledger row produced by every monetized event.
// PlatformFeeCents + CreatorEarningsCents always equals AmountCents.
type RevenueEntry struct {
	ID                   uuid.UUID   `json:"id"`
	StreamID             uuid.UUID   `json:"stream_id"`
	EntryType            RevenueType `json:"entry_type"`
	SourceID             uuid.UUID   `json:"source_id"`
	UserID               uuid.UUID   `json:"user_id"`
	AmountCents          int64       `json:"amount_cents"`
	PlatformFeeCents     int64       `json:"platform_fee_cents"`
	CreatorEarningsCents int64       `json:"creator_earnings_cents"`
	CreatedAt            time.Time   `json:"created_at"`
}
