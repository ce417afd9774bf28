package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/paylink-backend/pkg/logger"
)

type fakeRequestExpirer struct {
	swept     int
	err       error
	lastNow   time.Time
	lastLimit int
	calls     int
}

func (f *fakeRequestExpirer) ExpireSweep(_ context.Context, now time.Time, limit int) (int, error) {
	f.calls++
	f.lastNow = now
	f.lastLimit = limit
	return f.swept, f.err
}

func TestExpirySweepJobRun(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	requests := &fakeRequestExpirer{swept: 3}
	job, err := NewExpirySweepJob(ExpirySweepJobParams{
		Logger:    logg,
		Requests:  requests,
		BatchSize: 50,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	job.(*expirySweepJob).now = func() time.Time { return fixed }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if requests.calls != 1 {
		t.Fatalf("expected one sweep call, got %d", requests.calls)
	}
	if !requests.lastNow.Equal(fixed) {
		t.Fatalf("expected sweep time %v, got %v", fixed, requests.lastNow)
	}
	if requests.lastLimit != 50 {
		t.Fatalf("expected batch size 50, got %d", requests.lastLimit)
	}
}

func TestExpirySweepJobPropagatesError(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	requests := &fakeRequestExpirer{swept: 1, err: errors.New("db down")}
	job, err := NewExpirySweepJob(ExpirySweepJobParams{Logger: logg, Requests: requests})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error from failed sweep")
	}
}

func TestExpirySweepJobRequiresDeps(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	if _, err := NewExpirySweepJob(ExpirySweepJobParams{Logger: logg}); err == nil {
		t.Fatal("expected error without request service")
	}
	if _, err := NewExpirySweepJob(ExpirySweepJobParams{Requests: &fakeRequestExpirer{}}); err == nil {
		t.Fatal("expected error without logger")
	}
}
