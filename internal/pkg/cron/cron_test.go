package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsJobOnInterval(t *testing.T) {
	sched := New()
	var runs atomic.Int32
	sched.Register(Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Fatalf("job ran %d times, want at least 2", runs.Load())
	}
}

func TestSchedulerManualRun(t *testing.T) {
	sched := New()
	var runs atomic.Int32
	sched.Register(Job{
		Name:     "manual",
		Interval: time.Hour,
		Fn: func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	if err := sched.Run(context.Background(), "manual"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if runs.Load() != 1 {
		t.Fatalf("manual run count = %d, want 1", runs.Load())
	}

	if err := sched.Run(context.Background(), "unknown"); err == nil {
		t.Error("Run accepted an unknown job name")
	}
}

func TestSchedulerRecordsFailure(t *testing.T) {
	sched := New()
	sched.Register(Job{
		Name:     "failing",
		Interval: time.Hour,
		Fn: func(ctx context.Context) error {
			return errors.New("boom")
		},
	})

	if err := sched.Run(context.Background(), "failing"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		items := sched.List()
		if len(items) == 1 && items[0].Status == StatusReject {
			if items[0].Message != "boom" {
				t.Errorf("message = %q, want boom", items[0].Message)
			}
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("job never reported rejection")
}
