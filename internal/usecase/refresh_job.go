package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"MarketSignal/internal/domain/models"
	domrepo "MarketSignal/internal/domain/repository"
	applogger "MarketSignal/pkg/logger"
	"MarketSignal/pkg/metrics"
	"MarketSignal/pkg/queue"
)

// RefreshJobType is the queue message type of RefreshJob.
const RefreshJobType = "signal.refresh"

// RefreshRequest asks for an instrument's signal to be recomputed.
type RefreshRequest struct {
	Stock string `json:"stock"`
}

// RefreshJob drops an instrument's cached results, recomputes its signal and
// publishes it when a publisher is configured.
type RefreshJob struct {
	pipeline  *SignalPipeline
	publisher domrepo.SignalPublisher
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

// NewRefreshJob builds the job. publisher may be nil.
func NewRefreshJob(pipeline *SignalPipeline, publisher domrepo.SignalPublisher, m domrepo.Metrics, l *applogger.Logger) *RefreshJob {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &RefreshJob{
		pipeline:  pipeline,
		publisher: publisher,
		metrics:   m,
		l:         l.With(applogger.String("component", "refresh_job")),
	}
}

func (j *RefreshJob) Type() string { return RefreshJobType }

// Handle drops requests for unknown instruments instead of retrying them.
func (j *RefreshJob) Handle(ctx context.Context, payload json.RawMessage) error {
	req, err := queue.Decode[RefreshRequest](payload)
	if err != nil {
		j.metrics.RecordError("refresh_decode")
		j.l.Warn("dropping malformed refresh request", applogger.Error(err))
		return nil
	}

	if err := j.pipeline.Invalidate(ctx, req.Stock); err != nil {
		if errors.Is(err, ErrInvalidStock) {
			j.l.Warn("refresh skipped", applogger.Error(err))
			return nil
		}
		j.l.Warn("cache invalidation failed", applogger.String("stock", req.Stock), applogger.Error(err))
	}

	res, err := j.pipeline.Run(ctx, req.Stock)
	if err != nil {
		if errors.Is(err, ErrNoHistory) || errors.Is(err, ErrInvalidStock) {
			j.l.Warn("refresh skipped", applogger.String("stock", req.Stock), applogger.Error(err))
			return nil
		}
		j.metrics.RecordError("refresh_score")
		return err
	}
	if j.publisher == nil {
		return nil
	}
	return publishReport(ctx, j.publisher, j.metrics, models.SeverityMedium, j.l, res)
}

var _ queue.Job = (*RefreshJob)(nil)
