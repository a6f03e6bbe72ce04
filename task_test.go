package web2fb

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodicTaskDropsOverlappingTicks(t *testing.T) {
	var started, finished atomic.Int64
	task := newPeriodicTask(`slow`, 10*time.Millisecond, func(time.Time) {
		started.Add(1)
		time.Sleep(120 * time.Millisecond)
		finished.Add(1)
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		task.run(ctx)
		close(done)
	}()
	<-done

	// ~30 ticks arrived, only non-overlapping invocations ran
	assert.LessOrEqual(t, started.Load(), int64(4))
	assert.Positive(t, started.Load())
	assert.Equal(t, started.Load(), finished.Load(), `no invocation was queued for later`)
}

func TestPeriodicTaskStopsOnCancel(t *testing.T) {
	task := newPeriodicTask(`noop`, 5*time.Millisecond, func(time.Time) {}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		task.run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal(`task did not stop`)
	}
}
