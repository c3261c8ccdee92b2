package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jasoncmcclain/mcpmp-api/pkg/logger"
)

type fakeLock struct {
	acquired bool
	denied   bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired || f.denied {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

// losingLock grants the cycle but reports the hold lost on first extension.
type losingLock struct {
	fakeLock
	extends int
}

func (l *losingLock) Extend(context.Context) (bool, error) {
	l.extends++
	return false, nil
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

type recordingMetrics struct {
	success, failure map[string]int
	skipped          int
}

func (r *recordingMetrics) ObserveRun(job string, _ time.Duration, err error) {
	if err != nil {
		r.failure[job]++
		return
	}
	r.success[job]++
}

func (r *recordingMetrics) IncLockSkipped() { r.skipped++ }

func TestServiceRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	m := &recordingMetrics{success: map[string]int{}, failure: map[string]int{}}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(success, failure),
		Lock:     lock,
		Metrics:  m,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected each job once, got success=%d fail=%d", success.runs, failure.runs)
	}
	if m.success["success"] != 1 || m.failure["fail"] != 1 || m.skipped != 0 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock released once, got %d", lock.releases)
	}
}

func TestServiceSkipsCycleWithoutLock(t *testing.T) {
	job := &testJob{name: "expiry"}
	m := &recordingMetrics{success: map[string]int{}, failure: map[string]int{}}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{denied: true},
		Metrics:  m,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran without the lock")
	}
	if m.skipped != 1 {
		t.Fatalf("expected one skipped cycle, got %d", m.skipped)
	}
}

func TestServiceStopsCycleWhenLockLost(t *testing.T) {
	first := &testJob{name: "reservation-expiry"}
	second := &testJob{name: "outbox-relay"}
	lock := &losingLock{}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(first, second),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if first.runs != 1 || second.runs != 0 {
		t.Fatalf("expected only the first job to run, got %d and %d", first.runs, second.runs)
	}
	if lock.extends != 1 {
		t.Fatalf("expected one extension attempt, got %d", lock.extends)
	}
}

type signalJob struct {
	once sync.Once
	ran  chan struct{}
}

func (s *signalJob) Name() string { return "tick" }

func (s *signalJob) Run(context.Context) error {
	s.once.Do(func() { close(s.ran) })
	return nil
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &signalJob{ran: make(chan struct{})}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     NewLocalLock(),
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	select {
	case <-job.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never ran")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewServiceValidates(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: NewLocalLock()}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected lock error")
	}
}
