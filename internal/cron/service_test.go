package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/angelmondragon/pokecard-storefront/pkg/logger"
	"github.com/angelmondragon/pokecard-storefront/pkg/metrics"
)

type fakeLock struct {
	held     bool
	err      error
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestRunOnceRunsEveryJobAndRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	cronMetrics := metrics.NewCronJobMetrics(reg)
	ok := &testJob{name: "expire-checkout-sessions"}
	failing := &testJob{name: "deactivate-expired-promos", err: errors.New("boom")}
	lock := &fakeLock{}

	svc, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(ok, failing),
		Lock:     lock,
		Metrics:  cronMetrics,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if ok.runs != 1 || failing.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", ok.runs, failing.runs)
	}
	if lock.releases != 1 || lock.held {
		t.Fatalf("expected lock released once, releases=%d held=%v", lock.releases, lock.held)
	}
	if got, err := testutil.GatherAndCount(reg); err != nil || got == 0 {
		t.Fatal("expected cron metrics to be collected")
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "outbox-retention"}
	svc, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{held: true},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job must not run without the lock")
	}
}

func TestRunOnceSurfacesLockErrors(t *testing.T) {
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{err: errors.New("redis down")}})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := svc.RunOnce(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "expire-checkout-sessions"}
	svc, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Lock: &fakeLock{}})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected lock error")
	}
}
