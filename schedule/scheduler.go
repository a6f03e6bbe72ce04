package schedule

import (
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/jyellick/web2fb-sub000/fbdev"
	"github.com/jyellick/web2fb-sub000/internal/logx"
)

// Sink is the subset of the device the scheduler dispatches to.
type Sink interface {
	WriteFull(buf []byte, raw *fbdev.RawImage) bool
	WritePartial(buf []byte, raw *fbdev.RawImage, region image.Rectangle) bool
}

var _ Sink = (*fbdev.Device)(nil)

// Scheduler fires queued operations at wall-clock second boundaries. The
// expected second is seeded once at Start and incremented per fire rather
// than recomputed from the clock, so a timer firing a few milliseconds
// early cannot double-fire a second. A stall of two or more seconds skips
// ahead: missed seconds are reported dropped and never written late.
type Scheduler struct {
	queue  *Queue
	sink   Sink
	logger *slog.Logger

	// OnDisplayed and OnDropped are optional observation hooks, set
	// before Start.
	OnDisplayed func(second int64, d time.Duration, ok bool)
	OnDropped   func(second int64)

	mu       sync.Mutex
	running  bool
	expected int64
	timer    *time.Timer
}

func NewScheduler(queue *Queue, sink Sink, logger *slog.Logger) *Scheduler {
	return &Scheduler{queue: queue, sink: sink, logger: logger}
}

// Start arms the boundary timer. The first fire targets the next full
// second. Idempotent while running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	now := time.Now()
	s.expected = now.Unix() + 1
	s.timer = time.AfterFunc(untilBoundary(now), s.fire)
}

// Stop cancels the timer. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	second := s.expected
	var missed []int64
	if floor := now.Unix(); floor > second {
		// stalled past the expected second, skip ahead
		for m := second; m < floor; m++ {
			missed = append(missed, m)
		}
		second = floor
	}
	s.expected = second + 1
	s.timer = time.AfterFunc(untilBoundary(now), s.fire)
	s.mu.Unlock()

	for _, m := range missed {
		s.queue.Dequeue(m)
		s.reportDrop(m, `stall`)
	}
	s.displayFrame(second)
}

// displayFrame consumes and dispatches the operation for second. A
// missing operation is a dropped frame: logged, never retried.
func (s *Scheduler) displayFrame(second int64) {
	op := s.queue.Dequeue(second)
	if op == nil {
		s.reportDrop(second, `unqueued`)
		return
	}
	start := time.Now()
	var ok bool
	switch op.Kind {
	case KindFull:
		ok = s.sink.WriteFull(op.Pix, &op.Raw)
	case KindPartial:
		ok = s.sink.WritePartial(op.Pix, &op.Raw, op.Region)
	default:
		logx.Error(s.logger, `unknown operation kind`, `second`, second, `kind`, int(op.Kind))
		return
	}
	if s.OnDisplayed != nil {
		s.OnDisplayed(second, time.Since(start), ok)
	}
}

func (s *Scheduler) reportDrop(second int64, reason string) {
	logx.Warn(s.logger, `dropped frame`, `second`, second, `reason`, reason)
	if s.OnDropped != nil {
		s.OnDropped(second)
	}
}

// untilBoundary returns the delay to the next wall-clock second boundary.
func untilBoundary(now time.Time) time.Duration {
	ms := now.UnixMilli() % 1000
	return time.Duration(1000-ms) * time.Millisecond
}
