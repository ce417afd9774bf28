package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

const defaultStaleAfter = 24 * time.Hour

// StalePendingJobParams configure the stale transaction/refund sweep.
type StalePendingJobParams struct {
	Logger       *logger.Logger
	Transactions staleFailer
	Refunds      staleFailer
	StaleAfter   time.Duration
	BatchSize    int
}

type staleFailer interface {
	FailStale(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

// NewStalePendingJob builds the cron job that times out PENDING transactions
// and refunds whose gateway confirmation never arrived.
func NewStalePendingJob(params StalePendingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transaction service required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund service required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultSweepBatchSize
	}
	return &stalePendingJob{
		logg:         params.Logger,
		transactions: params.Transactions,
		refunds:      params.Refunds,
		staleAfter:   staleAfter,
		batchSize:    batchSize,
		now:          time.Now,
	}, nil
}

type stalePendingJob struct {
	logg         *logger.Logger
	transactions staleFailer
	refunds      staleFailer
	staleAfter   time.Duration
	batchSize    int
	now          func() time.Time
}

func (j *stalePendingJob) Name() string { return "stale-pending-sweep" }

func (j *stalePendingJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.staleAfter)

	var errs error
	failedTransactions, err := j.transactions.FailStale(ctx, cutoff, j.batchSize)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("stale transactions: %w", err))
	}
	failedRefunds, err := j.refunds.FailStale(ctx, cutoff, j.batchSize)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("stale refunds: %w", err))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":              cutoff,
		"failed_transactions": failedTransactions,
		"failed_refunds":      failedRefunds,
	})
	j.logg.Info(logCtx, "stale pending sweep complete")
	return errs
}
