package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pulselive/backend/internal/analytics"
	"github.com/pulselive/backend/internal/models"
	"github.com/pulselive/backend/pkg/queue"
)

// Analytics is the slice of the aggregator the worker drives.
type Analytics interface {
	CaptureSnapshot(ctx context.Context, streamID uuid.UUID) (*models.AnalyticsSnapshot, error)
	ExportReport(ctx context.Context, streamID uuid.UUID) (*analytics.ExportedReport, error)
}

// LiveLister enumerates currently live streams for the snapshot scheduler.
type LiveLister interface {
	ListLive(ctx context.Context) ([]models.LiveStream, error)
}

// Jobs is the queue surface the worker needs.
type Jobs interface {
	EnqueueSnapshotCapture(ctx context.Context, payload queue.SnapshotPayload) error
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Processor runs the analytics job loop and the snapshot scheduler.
type Processor struct {
	analytics Analytics
	streams   LiveLister
	jobs      Jobs
	interval  time.Duration
	backoff   time.Duration
	logger    *zap.Logger
}

// NewProcessor creates the background processor. interval is the snapshot
// cadence for live streams.
func NewProcessor(a Analytics, streams LiveLister, jobs Jobs, interval time.Duration, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Processor{
		analytics: a,
		streams:   streams,
		jobs:      jobs,
		interval:  interval,
		backoff:   queue.RetryBackoff,
		logger:    logger,
	}
}

// Process executes one job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeSnapshotCapture:
		var payload queue.SnapshotPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		if _, err := p.analytics.CaptureSnapshot(ctx, payload.StreamID); err != nil {
			return fmt.Errorf("capture snapshot: %w", err)
		}
		return nil
	case queue.JobTypeReportExport:
		var payload queue.ReportPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		// Final snapshot so the report covers the last slice of the stream.
		if _, err := p.analytics.CaptureSnapshot(ctx, payload.StreamID); err != nil {
			p.logger.Warn("final snapshot failed",
				zap.String("stream_id", payload.StreamID.String()), zap.Error(err))
		}
		exported, err := p.analytics.ExportReport(ctx, payload.StreamID)
		if err != nil {
			return fmt.Errorf("export report: %w", err)
		}
		p.logger.Info("report exported",
			zap.String("stream_id", payload.StreamID.String()),
			zap.String("key", exported.Key))
		return nil
	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// Run starts the job loop: dequeue, process, retry on error. Blocks until
// ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(p.backoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
		}
	}
}

// RunScheduler enqueues a snapshot job for every live stream on each tick.
// Blocks until ctx is cancelled.
func (p *Processor) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("snapshot scheduler stopping")
			return
		case <-ticker.C:
			p.scheduleSnapshots(ctx)
		}
	}
}

func (p *Processor) scheduleSnapshots(ctx context.Context) {
	live, err := p.streams.ListLive(ctx)
	if err != nil {
		p.logger.Warn("list live streams failed", zap.Error(err))
		return
	}
	for _, s := range live {
		if err := p.jobs.EnqueueSnapshotCapture(ctx, queue.SnapshotPayload{StreamID: s.ID}); err != nil {
			p.logger.Warn("enqueue snapshot failed", zap.String("stream_id", s.ID.String()), zap.Error(err))
		}
	}
}
