package monetization

import (
	"github.com/pulselive/backend/internal/models"
)

// FeeSchedule maps each monetization instrument to the platform's cut in
// basis points (1000 = 10%). Injected from configuration.
type FeeSchedule map[models.RevenueType]int

// DefaultFeeSchedule takes 10% on every instrument.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		models.RevenueDonation:     1000,
		models.RevenueSuperChat:    1000,
		models.RevenueSubscription: 1000,
	}
}

// Split divides amountCents into platform fee and creator earnings. The
// fee is floored, so fee + earnings always equals the amount exactly.
func (f FeeSchedule) Split(t models.RevenueType, amountCents int64) (feeCents, earningsCents int64) {
	bps := int64(f[t])
	feeCents = amountCents * bps / 10000
	earningsCents = amountCents - feeCents
	return feeCents, earningsCents
}

// Subscription pricing per tier, in cents.
var subscriptionPriceCents = map[models.SubscriptionTier]int64{
	models.TierBasic:   499,
	models.TierPremium: 999,
	models.TierVIP:     2499,
}

// superChatTierFor derives highlight tier and pin duration from the paid
// amount.
func superChatTierFor(amountCents int64) (models.SuperChatTier, int) {
	switch {
	case amountCents >= 2000:
		return models.SuperChatRed, 3600
	case amountCents >= 1000:
		return models.SuperChatOrange, 1800
	case amountCents >= 500:
		return models.SuperChatYellow, 600
	case amountCents >= 200:
		return models.SuperChatGreen, 120
	default:
		return models.SuperChatBlue, 30
	}
}
