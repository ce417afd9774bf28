package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

const defaultSweepBatchSize = 250

// ExpirySweepJobParams configure the payment request expiry sweep.
type ExpirySweepJobParams struct {
	Logger    *logger.Logger
	Requests  requestExpirer
	BatchSize int
}

type requestExpirer interface {
	ExpireSweep(ctx context.Context, now time.Time, limit int) (int, error)
}

// NewExpirySweepJob builds the cron job that cancels expired payment requests.
func NewExpirySweepJob(params ExpirySweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Requests == nil {
		return nil, fmt.Errorf("request service required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &expirySweepJob{
		logg:      params.Logger,
		requests:  params.Requests,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type expirySweepJob struct {
	logg      *logger.Logger
	requests  requestExpirer
	batchSize int
	now       func() time.Time
}

func (j *expirySweepJob) Name() string { return "request-expiry-sweep" }

func (j *expirySweepJob) Run(ctx context.Context) error {
	swept, err := j.requests.ExpireSweep(ctx, j.now().UTC(), j.batchSize)
	logCtx := j.logg.WithFields(ctx, map[string]any{"swept": swept})
	if err != nil {
		// Partial progress still counts; surface the aggregated error.
		j.logg.Info(logCtx, "request expiry sweep finished with errors")
		return fmt.Errorf("request expiry sweep: %w", err)
	}
	j.logg.Info(logCtx, "request expiry sweep complete")
	return nil
}
