package monetization

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/pkg/apperr"
)

type memStore struct {
	mu      sync.Mutex
	entries []models.RevenueEntry
	chat    []models.ChatMessage
}

func (m *memStore) record(entry *models.RevenueEntry, sourceID uuid.UUID) {
	entry.ID = uuid.New()
	entry.SourceID = sourceID
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
}

func (m *memStore) InsertDonation(_ context.Context, d *models.Donation, entry *models.RevenueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	m.record(entry, d.ID)
	return nil
}

func (m *memStore) InsertSuperChat(_ context.Context, sc *models.SuperChat, entry *models.RevenueEntry, chat *models.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc.ID = uuid.New()
	sc.CreatedAt = time.Now()
	chat.ID = uuid.New()
	chat.CreatedAt = time.Now()
	m.chat = append(m.chat, *chat)
	m.record(entry, sc.ID)
	return nil
}

func (m *memStore) InsertSubscription(_ context.Context, sub *models.Subscription, entry *models.RevenueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now()
	m.record(entry, sub.ID)
	return nil
}

func (m *memStore) SumRevenue(_ context.Context, streamID uuid.UUID, q RevenueQuery) (*Breakdown, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var b Breakdown
	for _, entry := range m.entries {
		if entry.StreamID == streamID && q.Matches(entry) {
			b.Add(entry)
		}
	}
	return &b, nil
}

type memDirectory struct {
	streams map[uuid.UUID]*models.LiveStream
}

func (d *memDirectory) Get(_ context.Context, id uuid.UUID) (*models.LiveStream, error) {
	s, ok := d.streams[id]
	if !ok {
		return nil, apperr.NotFound("stream not found")
	}
	cp := *s
	return &cp, nil
}

func newTestEngine(t *testing.T, streams ...*models.LiveStream) (*Engine, *memStore) {
	t.Helper()
	dir := &memDirectory{streams: make(map[uuid.UUID]*models.LiveStream)}
	for _, s := range streams {
		dir.streams[s.ID] = s
	}
	store := &memStore{}
	return NewEngine(store, dir, nil, nil, zap.NewNop()), store
}

func liveStream() *models.LiveStream {
	return &models.LiveStream{
		ID:      uuid.New(),
		OwnerID: uuid.New(),
		Status:  models.StreamLive,
	}
}

func TestEngine_ProcessDonation(t *testing.T) {
	stream := liveStream()
	engine, store := newTestEngine(t, stream)
	userID := uuid.New()

	d, entry, err := engine.ProcessDonation(context.Background(), stream.ID, userID, 1000, models.CurrencyUSD, "great show", false)
	if err != nil {
		t.Fatalf("ProcessDonation: %v", err)
	}
	if d.ID == uuid.Nil {
		t.Error("donation was not assigned an id")
	}
	if entry.EntryType != models.RevenueDonation {
		t.Errorf("entry type = %s, want donation", entry.EntryType)
	}
	if entry.PlatformFeeCents != 100 || entry.CreatorEarningsCents != 900 {
		t.Errorf("split = (%d, %d), want (100, 900)", entry.PlatformFeeCents, entry.CreatorEarningsCents)
	}
	if entry.SourceID != d.ID {
		t.Errorf("entry source = %s, want donation id %s", entry.SourceID, d.ID)
	}
	if got := len(store.entries); got != 1 {
		t.Fatalf("ledger has %d entries, want 1", got)
	}
}

func TestEngine_ProcessDonation_Validation(t *testing.T) {
	stream := liveStream()
	engine, _ := newTestEngine(t, stream)
	userID := uuid.New()

	tests := []struct {
		name     string
		amount   int64
		currency models.Currency
	}{
		{name: "zero amount", amount: 0, currency: models.CurrencyUSD},
		{name: "negative amount", amount: -500, currency: models.CurrencyUSD},
		{name: "bad currency", amount: 500, currency: "BTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := engine.ProcessDonation(context.Background(), stream.ID, userID, tt.amount, tt.currency, "", false)
			if !apperr.IsValidation(err) {
				t.Errorf("got %v, want validation error", err)
			}
		})
	}
}

func TestEngine_ProcessDonation_StreamNotLive(t *testing.T) {
	stream := liveStream()
	stream.Status = models.StreamScheduled
	engine, _ := newTestEngine(t, stream)

	_, _, err := engine.ProcessDonation(context.Background(), stream.ID, uuid.New(), 500, models.CurrencyUSD, "", false)
	if !apperr.IsConflict(err) {
		t.Errorf("got %v, want conflict", err)
	}

	_, _, err = engine.ProcessDonation(context.Background(), uuid.New(), uuid.New(), 500, models.CurrencyUSD, "", false)
	if !apperr.IsNotFound(err) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestEngine_ProcessSuperChat(t *testing.T) {
	stream := liveStream()
	engine, store := newTestEngine(t, stream)
	userID := uuid.New()

	sc, entry, err := engine.ProcessSuperChat(context.Background(), stream.ID, userID, 1500, models.CurrencyEUR, "hello from Berlin")
	if err != nil {
		t.Fatalf("ProcessSuperChat: %v", err)
	}
	if sc.Tier != models.SuperChatOrange || sc.PinSeconds != 1800 {
		t.Errorf("tier = (%s, %d), want (orange, 1800)", sc.Tier, sc.PinSeconds)
	}
	if entry.AmountCents != 1500 || entry.PlatformFeeCents+entry.CreatorEarningsCents != 1500 {
		t.Errorf("entry does not reconstruct the amount: %+v", entry)
	}

	if got := len(store.chat); got != 1 {
		t.Fatalf("chat ledger has %d messages, want 1", got)
	}
	if store.chat[0].Type != models.ChatSuperChat || store.chat[0].Text != "hello from Berlin" {
		t.Errorf("chat message = %+v, want super_chat with the paid text", store.chat[0])
	}

	_, _, err = engine.ProcessSuperChat(context.Background(), stream.ID, userID, 500, models.CurrencyUSD, "")
	if !apperr.IsValidation(err) {
		t.Errorf("empty message: got %v, want validation error", err)
	}
}

func TestEngine_ProcessSubscription(t *testing.T) {
	stream := liveStream()
	stream.Status = models.StreamEnded // subscriptions do not require a live stream
	engine, _ := newTestEngine(t, stream)
	userID := uuid.New()

	sub, entry, err := engine.ProcessSubscription(context.Background(), stream.ID, userID, models.TierPremium, models.CurrencyUSD, nil)
	if err != nil {
		t.Fatalf("ProcessSubscription: %v", err)
	}
	if sub.AmountCents != 999 {
		t.Errorf("premium price = %d, want 999", sub.AmountCents)
	}
	if entry.PlatformFeeCents != 99 || entry.CreatorEarningsCents != 900 {
		t.Errorf("split = (%d, %d), want (99, 900)", entry.PlatformFeeCents, entry.CreatorEarningsCents)
	}

	_, _, err = engine.ProcessSubscription(context.Background(), stream.ID, userID, "gold", models.CurrencyUSD, nil)
	if !apperr.IsValidation(err) {
		t.Errorf("bad tier: got %v, want validation error", err)
	}
	_, _, err = engine.ProcessSubscription(context.Background(), uuid.New(), userID, models.TierBasic, models.CurrencyUSD, nil)
	if !apperr.IsNotFound(err) {
		t.Errorf("unknown stream: got %v, want not found", err)
	}
}

func TestEngine_GetRevenue(t *testing.T) {
	stream := liveStream()
	engine, _ := newTestEngine(t, stream)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	mustDonate := func(user uuid.UUID, amount int64) {
		t.Helper()
		if _, _, err := engine.ProcessDonation(ctx, stream.ID, user, amount, models.CurrencyUSD, "", false); err != nil {
			t.Fatalf("donation: %v", err)
		}
	}
	mustDonate(alice, 1000)
	mustDonate(bob, 2500)
	if _, _, err := engine.ProcessSuperChat(ctx, stream.ID, alice, 500, models.CurrencyUSD, "hi"); err != nil {
		t.Fatalf("super chat: %v", err)
	}
	if _, _, err := engine.ProcessSubscription(ctx, stream.ID, bob, models.TierBasic, models.CurrencyUSD, nil); err != nil {
		t.Fatalf("subscription: %v", err)
	}

	got, err := engine.GetRevenue(ctx, stream.ID, RevenueQuery{})
	if err != nil {
		t.Fatalf("GetRevenue: %v", err)
	}
	want := &Breakdown{
		Donations:     InstrumentTotal{Count: 2, GrossCents: 3500, FeeCents: 350, EarningsCents: 3150},
		SuperChats:    InstrumentTotal{Count: 1, GrossCents: 500, FeeCents: 50, EarningsCents: 450},
		Subscriptions: InstrumentTotal{Count: 1, GrossCents: 499, FeeCents: 49, EarningsCents: 450},
		GrossCents:    4499,
		FeeCents:      449,
		EarningsCents: 4050,
		Count:         4,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("breakdown mismatch (-want +got):\n%s", diff)
	}

	donations := models.RevenueDonation
	minAmount := int64(2000)
	filtered, err := engine.GetRevenue(ctx, stream.ID, RevenueQuery{EntryType: &donations, MinAmount: &minAmount})
	if err != nil {
		t.Fatalf("GetRevenue filtered: %v", err)
	}
	if filtered.Count != 1 || filtered.GrossCents != 2500 {
		t.Errorf("filtered = %d entries / %d cents, want 1 / 2500", filtered.Count, filtered.GrossCents)
	}
}

func TestEngine_GetRevenue_UnknownStream(t *testing.T) {
	engine, _ := newTestEngine(t)

	got, err := engine.GetRevenue(context.Background(), uuid.New(), RevenueQuery{})
	if err != nil {
		t.Fatalf("GetRevenue: %v", err)
	}
	if got.Count != 0 || got.GrossCents != 0 {
		t.Errorf("unknown stream breakdown = %+v, want all zeroes", got)
	}
}

func TestEngine_GetRevenue_BadQuery(t *testing.T) {
	engine, _ := newTestEngine(t)

	badType := models.RevenueType("lottery")
	if _, err := engine.GetRevenue(context.Background(), uuid.New(), RevenueQuery{EntryType: &badType}); !apperr.IsValidation(err) {
		t.Errorf("bad type: got %v, want validation error", err)
	}

	minAmount, maxAmount := int64(500), int64(100)
	if _, err := engine.GetRevenue(context.Background(), uuid.New(), RevenueQuery{MinAmount: &minAmount, MaxAmount: &maxAmount}); !apperr.IsValidation(err) {
		t.Errorf("inverted range: got %v, want validation error", err)
	}
}
