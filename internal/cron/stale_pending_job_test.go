package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

type fakeStaleFailer struct {
	failed     int
	err        error
	lastCutoff time.Time
	lastLimit  int
	calls      int
}

func (f *fakeStaleFailer) FailStale(_ context.Context, olderThan time.Time, limit int) (int, error) {
	f.calls++
	f.lastCutoff = olderThan
	f.lastLimit = limit
	return f.failed, f.err
}

func TestStalePendingJobRun(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	transactions := &fakeStaleFailer{failed: 2}
	refunds := &fakeStaleFailer{failed: 1}
	job, err := NewStalePendingJob(StalePendingJobParams{
		Logger:       logg,
		Transactions: transactions,
		Refunds:      refunds,
		StaleAfter:   6 * time.Hour,
		BatchSize:    25,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	job.(*stalePendingJob).now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	wantCutoff := fixed.Add(-6 * time.Hour)
	if !transactions.lastCutoff.Equal(wantCutoff) {
		t.Fatalf("expected transaction cutoff %v, got %v", wantCutoff, transactions.lastCutoff)
	}
	if !refunds.lastCutoff.Equal(wantCutoff) {
		t.Fatalf("expected refund cutoff %v, got %v", wantCutoff, refunds.lastCutoff)
	}
	if transactions.lastLimit != 25 || refunds.lastLimit != 25 {
		t.Fatalf("expected batch size 25, got %d and %d", transactions.lastLimit, refunds.lastLimit)
	}
}

func TestStalePendingJobSweepsRefundsEvenWhenTransactionsFail(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	transactions := &fakeStaleFailer{err: errors.New("db down")}
	refunds := &fakeStaleFailer{failed: 1}
	job, err := NewStalePendingJob(StalePendingJobParams{
		Logger:       logg,
		Transactions: transactions,
		Refunds:      refunds,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected aggregated error")
	}
	if refunds.calls != 1 {
		t.Fatalf("expected refund sweep to still run, got %d calls", refunds.calls)
	}
}

func TestStalePendingJobRequiresDeps(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	if _, err := NewStalePendingJob(StalePendingJobParams{Logger: logg, Transactions: &fakeStaleFailer{}}); err == nil {
		t.Fatal("expected error without refund service")
	}
	if _, err := NewStalePendingJob(StalePendingJobParams{Logger: logg, Refunds: &fakeStaleFailer{}}); err == nil {
		t.Fatal("expected error without transaction service")
	}
}
