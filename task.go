package web2fb

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jyellick/web2fb-sub000/internal/logx"
)

// periodicTask runs fn on an interval with a non-reentrant guard: when a
// tick arrives while the previous invocation is still running, the new
// tick is dropped entirely, never queued. That bounds latency growth
// under load instead of letting a backlog form.
type periodicTask struct {
	name     string
	interval time.Duration
	fn       func(now time.Time)
	guard    *semaphore.Weighted
	logger   *slog.Logger
}

func newPeriodicTask(name string, interval time.Duration, fn func(now time.Time), logger *slog.Logger) *periodicTask {
	if interval <= 0 {
		interval = time.Second
	}
	return &periodicTask{
		name:     name,
		interval: interval,
		fn:       fn,
		guard:    semaphore.NewWeighted(1),
		logger:   logger,
	}
}

// run blocks until ctx is cancelled, then waits for the in-flight
// invocation so the caller can tear down shared state safely. Meant to
// be started on its own goroutine.
func (t *periodicTask) run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = t.guard.Acquire(context.Background(), 1)
			t.guard.Release(1)
			return
		case now := <-ticker.C:
			if !t.guard.TryAcquire(1) {
				logx.Debug(t.logger, `tick dropped, previous invocation still running`, `task`, t.name)
				continue
			}
			go func(now time.Time) {
				defer t.guard.Release(1)
				t.fn(now)
			}(now)
		}
	}
}
