package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeExpirer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeExpirer) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	f.calls.Add(1)
	return 1, f.err
}

type fakeCleaner struct {
	calls atomic.Int32
}

func (f *fakeCleaner) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	return 0, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRunnerTicksAndStops(t *testing.T) {
	expirer := &fakeExpirer{}
	cleaner := &fakeCleaner{}
	r := NewRunner(expirer, cleaner, 10*time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	waitFor(t, func() bool { return expirer.calls.Load() >= 2 && cleaner.calls.Load() >= 1 })

	cancel()
	r.Wait()

	after := expirer.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if got := expirer.calls.Load(); got != after {
		t.Errorf("expirer ran after stop: %d -> %d", after, got)
	}
}

func TestRunnerKeepsGoingAfterErrors(t *testing.T) {
	expirer := &fakeExpirer{err: errors.New("db down")}
	r := NewRunner(expirer, nil, 5*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	waitFor(t, func() bool { return expirer.calls.Load() >= 3 })
	cancel()
	r.Wait()
}

func TestNewRunnerDefaults(t *testing.T) {
	r := NewRunner(nil, nil, 0, 0)
	if r.expireInterval != time.Minute {
		t.Errorf("expireInterval = %v, want 1m", r.expireInterval)
	}
	if r.cleanupInterval != 24*time.Hour {
		t.Errorf("cleanupInterval = %v, want 24h", r.cleanupInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()
	r.Wait()
}
