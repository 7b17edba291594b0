package analytics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/internal/monetization"
	"github.com/pulselive/backend/pkg/apperr"
)

// Store is the persistence surface the aggregator needs. Counts read the
// engagement tables directly so report figures stay consistent with the
// ledger rows.
type Store interface {
	CountChat(ctx context.Context, streamID uuid.UUID, w Window) (int, error)
	CountUniqueChatters(ctx context.Context, streamID uuid.UUID, w Window) (int, error)
	CountReactions(ctx context.Context, streamID uuid.UUID, w Window) (map[models.ReactionType]int, error)
	InsertSnapshot(ctx context.Context, snap *models.AnalyticsSnapshot) error
	ListSnapshots(ctx context.Context, streamID uuid.UUID, q SnapshotQuery) ([]models.AnalyticsSnapshot, error)
}

// StreamDirectory resolves stream records.
type StreamDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*models.LiveStream, error)
}

// RevenueSource reports a stream's revenue totals.
type RevenueSource interface {
	GetRevenue(ctx context.Context, streamID uuid.UUID, q monetization.RevenueQuery) (*monetization.Breakdown, error)
}

// ReportStore persists exported report documents and issues download URLs.
type ReportStore interface {
	UploadReport(ctx context.Context, key string, body []byte) error
	PresignReportDownload(ctx context.Context, key string) (string, error)
}

// Window bounds a time range. Both ends are optional; Since is inclusive
// and Until is exclusive.
type Window struct {
	Since *time.Time
	Until *time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.Since != nil && t.Before(*w.Since) {
		return false
	}
	if w.Until != nil && !t.Before(*w.Until) {
		return false
	}
	return true
}

// SnapshotQuery bounds a snapshot listing; both ends are optional.
type SnapshotQuery struct {
	Since *time.Time
	Until *time.Time
	Limit int
}

const defaultSnapshotLimit = 500

func (q *SnapshotQuery) normalize() {
	if q.Limit <= 0 || q.Limit > defaultSnapshotLimit {
		q.Limit = defaultSnapshotLimit
	}
}

// Matches reports whether a snapshot falls inside the window. Shared by
// the in-memory store used in tests.
func (q SnapshotQuery) Matches(snap models.AnalyticsSnapshot) bool {
	return Window{Since: q.Since, Until: q.Until}.Contains(snap.CapturedAt)
}

// StreamReport is the end-of-stream aggregate document.
type StreamReport struct {
	StreamID          uuid.UUID                   `json:"stream_id"`
	Title             string                      `json:"title,omitempty"`
	Status            models.StreamStatus         `json:"status,omitempty"`
	StartedAt         *time.Time                  `json:"started_at,omitempty"`
	EndedAt           *time.Time                  `json:"ended_at,omitempty"`
	PeakViewers       int                         `json:"peak_viewers"`
	AverageViewers    float64                     `json:"average_viewers"`
	ChatCount         int                         `json:"chat_count"`
	UniqueChatters    int                         `json:"unique_chatters"`
	ReactionCount     int                         `json:"reaction_count"`
	ReactionBreakdown map[models.ReactionType]int `json:"reaction_breakdown"`
	EngagementRate    float64                     `json:"engagement_rate"`
	Revenue           monetization.Breakdown      `json:"revenue"`
	SnapshotCount     int                         `json:"snapshot_count"`
	GeneratedAt       time.Time                   `json:"generated_at"`
}

// ExportedReport points at a stored report document.
type ExportedReport struct {
	ReportID    uuid.UUID `json:"report_id"`
	StreamID    uuid.UUID `json:"stream_id"`
	Key         string    `json:"key"`
	DownloadURL string    `json:"download_url"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Aggregator folds engagement, audience and revenue data into snapshots
// and reports.
type Aggregator struct {
	store   Store
	streams StreamDirectory
	revenue RevenueSource
	reports ReportStore
	keyFor  func(streamID, reportID uuid.UUID) string
	logger  *zap.Logger
	now     func() time.Time
}

// NewAggregator creates an analytics aggregator. reports may be nil when
// export is disabled.
func NewAggregator(store Store, streams StreamDirectory, revenue RevenueSource, reports ReportStore, keyFor func(streamID, reportID uuid.UUID) string, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		store:   store,
		streams: streams,
		revenue: revenue,
		reports: reports,
		keyFor:  keyFor,
		logger:  logger,
		now:     time.Now,
	}
}

// EngagementRate is interactions per viewer. A zero viewer count divides
// by one so idle streams report their raw interaction count.
func EngagementRate(chatCount, reactionCount, viewerCount int) float64 {
	viewers := viewerCount
	if viewers < 1 {
		viewers = 1
	}
	return float64(chatCount+reactionCount) / float64(viewers)
}

// CaptureSnapshot records the stream's current engagement and revenue
// aggregate. The stream must exist; the worker invokes this on a timer
// for every live stream.
func (a *Aggregator) CaptureSnapshot(ctx context.Context, streamID uuid.UUID) (*models.AnalyticsSnapshot, error) {
	stream, err := a.streams.Get(ctx, streamID)
	if err != nil {
		return nil, err
	}

	chatCount, err := a.store.CountChat(ctx, streamID, Window{})
	if err != nil {
		return nil, err
	}
	reactions, err := a.store.CountReactions(ctx, streamID, Window{})
	if err != nil {
		return nil, err
	}
	reactionCount := 0
	for _, n := range reactions {
		reactionCount += n
	}
	breakdown, err := a.revenue.GetRevenue(ctx, streamID, monetization.RevenueQuery{})
	if err != nil {
		return nil, err
	}

	snap := &models.AnalyticsSnapshot{
		StreamID:      streamID,
		ViewerCount:   stream.ViewerCount,
		ChatCount:     chatCount,
		ReactionCount: reactionCount,
		RevenueCents:  breakdown.GrossCents,
		CapturedAt:    a.now(),
	}
	if err := a.store.InsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	a.logger.Debug("snapshot captured",
		zap.String("stream_id", streamID.String()),
		zap.Int("viewers", snap.ViewerCount),
		zap.Int("chat", snap.ChatCount))
	return snap, nil
}

// ListSnapshots returns snapshots in the window, oldest first. Unknown
// streams yield an empty list.
func (a *Aggregator) ListSnapshots(ctx context.Context, streamID uuid.UUID, q SnapshotQuery) ([]models.AnalyticsSnapshot, error) {
	q.normalize()
	return a.store.ListSnapshots(ctx, streamID, q)
}

// GenerateStreamReport folds the stream's engagement history into a report.
// A window with Since or Until set bounds every folded figure: chat and
// reaction counts, unique chatters, the revenue breakdown and the viewer
// snapshots that feed the average.
// Unknown streams yield a zero report rather than an error, matching the
// read-side tolerance of the other aggregates.
func (a *Aggregator) GenerateStreamReport(ctx context.Context, streamID uuid.UUID, window Window) (*StreamReport, error) {
	report := &StreamReport{
		StreamID:          streamID,
		ReactionBreakdown: map[models.ReactionType]int{},
		GeneratedAt:       a.now(),
	}

	stream, err := a.streams.Get(ctx, streamID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return report, nil
		}
		return nil, err
	}
	report.Title = stream.Title
	report.Status = stream.Status
	report.StartedAt = stream.ActualStart
	report.EndedAt = stream.ActualEnd
	report.PeakViewers = stream.PeakViewerCount

	report.ChatCount, err = a.store.CountChat(ctx, streamID, window)
	if err != nil {
		return nil, err
	}
	report.UniqueChatters, err = a.store.CountUniqueChatters(ctx, streamID, window)
	if err != nil {
		return nil, err
	}
	reactions, err := a.store.CountReactions(ctx, streamID, window)
	if err != nil {
		return nil, err
	}
	for t, n := range reactions {
		report.ReactionBreakdown[t] = n
		report.ReactionCount += n
	}

	breakdown, err := a.revenue.GetRevenue(ctx, streamID, monetization.RevenueQuery{Since: window.Since, Until: window.Until})
	if err != nil {
		return nil, err
	}
	report.Revenue = *breakdown

	snaps, err := a.store.ListSnapshots(ctx, streamID, SnapshotQuery{Since: window.Since, Until: window.Until, Limit: defaultSnapshotLimit})
	if err != nil {
		return nil, err
	}
	report.SnapshotCount = len(snaps)
	if len(snaps) > 0 {
		total := 0
		for _, s := range snaps {
			total += s.ViewerCount
		}
		report.AverageViewers = float64(total) / float64(len(snaps))
	}

	// The denominator is the peak audience: live viewer counts are zero
	// once the stream ends, so the rate is interactions per peak viewer.
	report.EngagementRate = EngagementRate(report.ChatCount, report.ReactionCount, report.PeakViewers)
	return report, nil
}

// ExportReport renders the stream report to JSON, stores it and returns a
// pre-signed download URL.
func (a *Aggregator) ExportReport(ctx context.Context, streamID uuid.UUID) (*ExportedReport, error) {
	if a.reports == nil {
		return nil, apperr.Conflict("report export is not configured")
	}
	report, err := a.GenerateStreamReport(ctx, streamID, Window{})
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}

	reportID := uuid.New()
	key := a.keyFor(streamID, reportID)
	if err := a.reports.UploadReport(ctx, key, body); err != nil {
		return nil, err
	}
	url, err := a.reports.PresignReportDownload(ctx, key)
	if err != nil {
		return nil, err
	}
	a.logger.Info("stream report exported",
		zap.String("stream_id", streamID.String()),
		zap.String("key", key))
	return &ExportedReport{
		ReportID:    reportID,
		StreamID:    streamID,
		Key:         key,
		DownloadURL: url,
		GeneratedAt: report.GeneratedAt,
	}, nil
}
