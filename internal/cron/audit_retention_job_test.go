package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

type fakeAuditPurger struct {
	deleted    int64
	err        error
	lastCutoff time.Time
	lastLimit  int
}

func (f *fakeAuditPurger) PurgeOlderThan(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	f.lastCutoff = cutoff
	f.lastLimit = limit
	return f.deleted, f.err
}

func TestAuditRetentionJobRun(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	purger := &fakeAuditPurger{deleted: 42}
	job, err := NewAuditRetentionJob(AuditRetentionJobParams{
		Logger:    logg,
		Audit:     purger,
		Retention: 90,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	job.(*auditRetentionJob).now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	wantCutoff := fixed.Add(-90 * 24 * time.Hour)
	if !purger.lastCutoff.Equal(wantCutoff) {
		t.Fatalf("expected cutoff %v, got %v", wantCutoff, purger.lastCutoff)
	}
}

func TestAuditRetentionJobDefaultsRetention(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	job, err := NewAuditRetentionJob(AuditRetentionJobParams{Logger: logg, Audit: &fakeAuditPurger{}})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if got := job.(*auditRetentionJob).retention; got != auditRetentionDays {
		t.Fatalf("expected default retention %d, got %d", auditRetentionDays, got)
	}
}

func TestAuditRetentionJobPropagatesError(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	purger := &fakeAuditPurger{err: errors.New("db down")}
	job, err := NewAuditRetentionJob(AuditRetentionJobParams{Logger: logg, Audit: purger})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error from failed purge")
	}
}
