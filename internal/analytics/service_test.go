package analytics

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/internal/monetization"
	"github.com/pulselive/backend/pkg/apperr"
)

type chatEntry struct {
	userID uuid.UUID
	at     time.Time
}

type reactionEntry struct {
	typ models.ReactionType
	at  time.Time
}

type memStore struct {
	mu        sync.Mutex
	chat      map[uuid.UUID][]chatEntry
	reactions map[uuid.UUID][]reactionEntry
	snaps     map[uuid.UUID][]models.AnalyticsSnapshot
}

func newMemStore() *memStore {
	return &memStore{
		chat:      make(map[uuid.UUID][]chatEntry),
		reactions: make(map[uuid.UUID][]reactionEntry),
		snaps:     make(map[uuid.UUID][]models.AnalyticsSnapshot),
	}
}

func (m *memStore) addChat(streamID, userID uuid.UUID, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chat[streamID] = append(m.chat[streamID], chatEntry{userID: userID, at: at})
}

func (m *memStore) addReaction(streamID uuid.UUID, typ models.ReactionType, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions[streamID] = append(m.reactions[streamID], reactionEntry{typ: typ, at: at})
}

func (m *memStore) CountChat(_ context.Context, streamID uuid.UUID, w Window) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.chat[streamID] {
		if w.Contains(e.at) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountUniqueChatters(_ context.Context, streamID uuid.UUID, w Window) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	for _, e := range m.chat[streamID] {
		if w.Contains(e.at) {
			seen[e.userID] = true
		}
	}
	return len(seen), nil
}

func (m *memStore) CountReactions(_ context.Context, streamID uuid.UUID, w Window) (map[models.ReactionType]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.ReactionType]int)
	for _, e := range m.reactions[streamID] {
		if w.Contains(e.at) {
			counts[e.typ]++
		}
	}
	return counts, nil
}

func (m *memStore) InsertSnapshot(_ context.Context, snap *models.AnalyticsSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.ID = uuid.New()
	m.snaps[snap.StreamID] = append(m.snaps[snap.StreamID], *snap)
	return nil
}

func (m *memStore) ListSnapshots(_ context.Context, streamID uuid.UUID, q SnapshotQuery) ([]models.AnalyticsSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.AnalyticsSnapshot
	for _, s := range m.snaps[streamID] {
		if q.Matches(s) {
			matched = append(matched, s)
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
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

type memRevenue struct {
	byStream  map[uuid.UUID]monetization.Breakdown
	lastQuery monetization.RevenueQuery
}

func (r *memRevenue) GetRevenue(_ context.Context, streamID uuid.UUID, q monetization.RevenueQuery) (*monetization.Breakdown, error) {
	r.lastQuery = q
	b := r.byStream[streamID]
	return &b, nil
}

type memReports struct {
	mu       sync.Mutex
	uploaded map[string][]byte
}

func (r *memReports) UploadReport(_ context.Context, key string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uploaded == nil {
		r.uploaded = make(map[string][]byte)
	}
	r.uploaded[key] = body
	return nil
}

func (r *memReports) PresignReportDownload(_ context.Context, key string) (string, error) {
	return "https://reports.test/" + key, nil
}

func testKey(streamID, reportID uuid.UUID) string {
	return fmt.Sprintf("reports/%s/%s.json", streamID, reportID)
}

func newTestAggregator(t *testing.T, streams ...*models.LiveStream) (*Aggregator, *memStore, *memRevenue, *memReports) {
	t.Helper()
	dir := &memDirectory{streams: make(map[uuid.UUID]*models.LiveStream)}
	for _, s := range streams {
		dir.streams[s.ID] = s
	}
	store := newMemStore()
	revenue := &memRevenue{byStream: make(map[uuid.UUID]monetization.Breakdown)}
	reports := &memReports{}
	agg := NewAggregator(store, dir, revenue, reports, testKey, zap.NewNop())
	return agg, store, revenue, reports
}

func TestEngagementRate(t *testing.T) {
	tests := []struct {
		name      string
		chat      int
		reactions int
		viewers   int
		want      float64
	}{
		{name: "typical", chat: 30, reactions: 20, viewers: 100, want: 0.5},
		{name: "zero viewers counts as one", chat: 3, reactions: 2, viewers: 0, want: 5},
		{name: "no interactions", chat: 0, reactions: 0, viewers: 50, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EngagementRate(tt.chat, tt.reactions, tt.viewers); got != tt.want {
				t.Errorf("EngagementRate(%d, %d, %d) = %v, want %v", tt.chat, tt.reactions, tt.viewers, got, tt.want)
			}
		})
	}
}

func TestAggregator_CaptureSnapshot(t *testing.T) {
	stream := &models.LiveStream{ID: uuid.New(), Status: models.StreamLive, ViewerCount: 42}
	agg, store, revenue, _ := newTestAggregator(t, stream)
	now := time.Now()
	for i := 0; i < 7; i++ {
		store.addChat(stream.ID, uuid.New(), now)
	}
	for i := 0; i < 3; i++ {
		store.addReaction(stream.ID, models.ReactionLike, now)
	}
	for i := 0; i < 2; i++ {
		store.addReaction(stream.ID, models.ReactionFire, now)
	}
	revenue.byStream[stream.ID] = monetization.Breakdown{GrossCents: 2500}

	snap, err := agg.CaptureSnapshot(context.Background(), stream.ID)
	if err != nil {
		t.Fatalf("CaptureSnapshot: %v", err)
	}
	if snap.ViewerCount != 42 || snap.ChatCount != 7 || snap.ReactionCount != 5 || snap.RevenueCents != 2500 {
		t.Errorf("snapshot = %+v, want viewers 42, chat 7, reactions 5, revenue 2500", snap)
	}
	if len(store.snaps[stream.ID]) != 1 {
		t.Errorf("store holds %d snapshots, want 1", len(store.snaps[stream.ID]))
	}

	if _, err := agg.CaptureSnapshot(context.Background(), uuid.New()); !apperr.IsNotFound(err) {
		t.Errorf("unknown stream: got %v, want not found", err)
	}
}

func TestAggregator_GenerateStreamReport(t *testing.T) {
	started := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	ended := started.Add(2 * time.Hour)
	stream := &models.LiveStream{
		ID:              uuid.New(),
		Title:           "launch party",
		Status:          models.StreamEnded,
		PeakViewerCount: 200,
		ActualStart:     &started,
		ActualEnd:       &ended,
	}
	agg, store, revenue, _ := newTestAggregator(t, stream)
	chatters := make([]uuid.UUID, 25)
	for i := range chatters {
		chatters[i] = uuid.New()
	}
	for i := 0; i < 80; i++ {
		store.addChat(stream.ID, chatters[i%len(chatters)], started.Add(time.Minute))
	}
	for i := 0; i < 15; i++ {
		store.addReaction(stream.ID, models.ReactionLike, started.Add(time.Minute))
	}
	for i := 0; i < 5; i++ {
		store.addReaction(stream.ID, models.ReactionClap, started.Add(time.Minute))
	}
	revenue.byStream[stream.ID] = monetization.Breakdown{GrossCents: 10000, FeeCents: 1000, EarningsCents: 9000, Count: 4}
	for _, viewers := range []int{100, 200, 150} {
		if err := store.InsertSnapshot(context.Background(), &models.AnalyticsSnapshot{StreamID: stream.ID, ViewerCount: viewers, CapturedAt: started}); err != nil {
			t.Fatal(err)
		}
	}

	report, err := agg.GenerateStreamReport(context.Background(), stream.ID, Window{})
	if err != nil {
		t.Fatalf("GenerateStreamReport: %v", err)
	}
	if report.Title != "launch party" || report.PeakViewers != 200 {
		t.Errorf("header = (%q, %d), want (launch party, 200)", report.Title, report.PeakViewers)
	}
	if report.ChatCount != 80 || report.UniqueChatters != 25 || report.ReactionCount != 20 {
		t.Errorf("engagement = (%d, %d, %d), want (80, 25, 20)", report.ChatCount, report.UniqueChatters, report.ReactionCount)
	}
	wantReactions := map[models.ReactionType]int{models.ReactionLike: 15, models.ReactionClap: 5}
	if diff := cmp.Diff(wantReactions, report.ReactionBreakdown); diff != "" {
		t.Errorf("reaction breakdown mismatch (-want +got):\n%s", diff)
	}
	if report.Revenue.GrossCents != 10000 {
		t.Errorf("revenue = %d, want 10000", report.Revenue.GrossCents)
	}
	if report.SnapshotCount != 3 || report.AverageViewers != 150 {
		t.Errorf("snapshots = (%d, %v), want (3, 150)", report.SnapshotCount, report.AverageViewers)
	}
	if want := float64(100) / 200; report.EngagementRate != want {
		t.Errorf("engagement rate = %v, want %v", report.EngagementRate, want)
	}
}

func TestAggregator_GenerateStreamReport_Window(t *testing.T) {
	stream := &models.LiveStream{ID: uuid.New(), Status: models.StreamEnded}
	agg, store, _, _ := newTestAggregator(t, stream)
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	for i, viewers := range []int{10, 100, 200, 20} {
		snap := &models.AnalyticsSnapshot{StreamID: stream.ID, ViewerCount: viewers, CapturedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.InsertSnapshot(context.Background(), snap); err != nil {
			t.Fatal(err)
		}
	}

	since := base.Add(1 * time.Minute)
	until := base.Add(3 * time.Minute)
	report, err := agg.GenerateStreamReport(context.Background(), stream.ID, Window{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("GenerateStreamReport: %v", err)
	}
	if report.SnapshotCount != 2 || report.AverageViewers != 150 {
		t.Errorf("windowed snapshots = (%d, %v), want (2, 150)", report.SnapshotCount, report.AverageViewers)
	}
}

func TestAggregator_GenerateStreamReport_WindowBoundsCounts(t *testing.T) {
	stream := &models.LiveStream{ID: uuid.New(), Status: models.StreamEnded, PeakViewerCount: 50}
	agg, store, revenue, _ := newTestAggregator(t, stream)
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	early, onTime := uuid.New(), uuid.New()

	store.addChat(stream.ID, early, base)
	store.addChat(stream.ID, onTime, base.Add(1*time.Minute))
	store.addChat(stream.ID, onTime, base.Add(2*time.Minute))
	store.addChat(stream.ID, early, base.Add(5*time.Minute))
	store.addReaction(stream.ID, models.ReactionLike, base)
	store.addReaction(stream.ID, models.ReactionFire, base.Add(1*time.Minute))
	store.addReaction(stream.ID, models.ReactionFire, base.Add(5*time.Minute))

	since := base.Add(1 * time.Minute)
	until := base.Add(3 * time.Minute)
	report, err := agg.GenerateStreamReport(context.Background(), stream.ID, Window{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("GenerateStreamReport: %v", err)
	}
	if report.ChatCount != 2 || report.UniqueChatters != 1 {
		t.Errorf("chat = (%d, %d), want in-window only (2, 1)", report.ChatCount, report.UniqueChatters)
	}
	wantReactions := map[models.ReactionType]int{models.ReactionFire: 1}
	if diff := cmp.Diff(wantReactions, report.ReactionBreakdown); diff != "" {
		t.Errorf("reaction breakdown mismatch (-want +got):\n%s", diff)
	}
	if revenue.lastQuery.Since == nil || !revenue.lastQuery.Since.Equal(since) {
		t.Errorf("revenue query since = %v, want %v", revenue.lastQuery.Since, since)
	}
	if revenue.lastQuery.Until == nil || !revenue.lastQuery.Until.Equal(until) {
		t.Errorf("revenue query until = %v, want %v", revenue.lastQuery.Until, until)
	}
}

func TestAggregator_GenerateStreamReport_UnknownStream(t *testing.T) {
	agg, _, _, _ := newTestAggregator(t)

	report, err := agg.GenerateStreamReport(context.Background(), uuid.New(), Window{})
	if err != nil {
		t.Fatalf("GenerateStreamReport: %v", err)
	}
	if report.ChatCount != 0 || report.ReactionCount != 0 || report.SnapshotCount != 0 || report.Revenue.GrossCents != 0 {
		t.Errorf("unknown stream report = %+v, want all zeroes", report)
	}
}

func TestAggregator_ExportReport(t *testing.T) {
	stream := &models.LiveStream{ID: uuid.New(), Status: models.StreamEnded, PeakViewerCount: 10}
	agg, _, _, reports := newTestAggregator(t, stream)

	exported, err := agg.ExportReport(context.Background(), stream.ID)
	if err != nil {
		t.Fatalf("ExportReport: %v", err)
	}
	if exported.Key == "" || exported.DownloadURL != "https://reports.test/"+exported.Key {
		t.Errorf("exported = %+v, want presigned URL for the stored key", exported)
	}
	if _, ok := reports.uploaded[exported.Key]; !ok {
		t.Errorf("report body was not uploaded under %s", exported.Key)
	}
}

func TestAggregator_ListSnapshots_Window(t *testing.T) {
	stream := &models.LiveStream{ID: uuid.New(), Status: models.StreamLive}
	agg, store, _, _ := newTestAggregator(t, stream)
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		snap := &models.AnalyticsSnapshot{StreamID: stream.ID, ViewerCount: i, CapturedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.InsertSnapshot(context.Background(), snap); err != nil {
			t.Fatal(err)
		}
	}

	since := base.Add(1 * time.Minute)
	until := base.Add(4 * time.Minute)
	snaps, err := agg.ListSnapshots(context.Background(), stream.ID, SnapshotQuery{Since: &since, Until: &until})
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("window returned %d snapshots, want 3", len(snaps))
	}

	empty, err := agg.ListSnapshots(context.Background(), uuid.New(), SnapshotQuery{})
	if err != nil {
		t.Fatalf("ListSnapshots unknown stream: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown stream returned %d snapshots, want 0", len(empty))
	}
}
