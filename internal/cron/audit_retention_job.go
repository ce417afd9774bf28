package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

const auditRetentionDays = 365

// AuditRetentionJobParams configure the audit log retention cleanup.
type AuditRetentionJobParams struct {
	Logger    *logger.Logger
	Audit     auditPurger
	Retention int
	BatchSize int
}

type auditPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// NewAuditRetentionJob builds the cron job that trims old audit log entries.
func NewAuditRetentionJob(params AuditRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit service required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = auditRetentionDays
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = 10000
	}
	return &auditRetentionJob{
		logg:      params.Logger,
		audit:     params.Audit,
		retention: retention,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

type auditRetentionJob struct {
	logg      *logger.Logger
	audit     auditPurger
	retention int
	batchSize int
	now       func() time.Time
}

func (j *auditRetentionJob) Name() string { return "audit-retention" }

func (j *auditRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	deleted, err := j.audit.PurgeOlderThan(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("audit retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "audit retention cleanup complete")
	return nil
}
