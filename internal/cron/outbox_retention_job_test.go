package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeOutboxRetentionRepo struct {
	deleted         int64
	err             error
	lastCutoff      time.Time
	lastMinAttempts int
}

func (f *fakeOutboxRetentionRepo) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error) {
	f.lastCutoff = cutoff
	f.lastMinAttempts = minAttemptCount
	return f.deleted, f.err
}

func TestOutboxRetentionJobRun(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	repo := &fakeOutboxRetentionRepo{deleted: 7}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:      logg,
		DB:          fakeTxRunner{},
		Repository:  repo,
		Retention:   14,
		MinAttempts: 8,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	job.(*outboxRetentionJob).now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	wantCutoff := fixed.Add(-14 * 24 * time.Hour)
	if !repo.lastCutoff.Equal(wantCutoff) {
		t.Fatalf("expected cutoff %v, got %v", wantCutoff, repo.lastCutoff)
	}
	if repo.lastMinAttempts != 8 {
		t.Fatalf("expected min attempts 8, got %d", repo.lastMinAttempts)
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	repo := &fakeOutboxRetentionRepo{err: errors.New("db down")}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logg,
		DB:         fakeTxRunner{},
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error from failed cleanup")
	}
}
