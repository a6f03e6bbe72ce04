// Package web2fb drives a Linux framebuffer from a periodically
// re-captured web page, compositing small dynamic widgets (clock, date,
// text) with second-level timing precision.
//
// One Pipeline instance owns the device handle, the live base image, the
// overlay state table and the pre-render caches. All of it is constructed
// at startup and torn down at shutdown, so multiple instances can coexist
// in tests.
package web2fb

import (
	"context"
	"image"
	"image/draw"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"github.com/jyellick/web2fb-sub000/capture"
	"github.com/jyellick/web2fb-sub000/clockcache"
	"github.com/jyellick/web2fb-sub000/detect"
	"github.com/jyellick/web2fb-sub000/fbdev"
	"github.com/jyellick/web2fb-sub000/internal/errors"
	"github.com/jyellick/web2fb-sub000/internal/logx"
	"github.com/jyellick/web2fb-sub000/overlay"
	"github.com/jyellick/web2fb-sub000/schedule"
	"github.com/jyellick/web2fb-sub000/stress"
)

// Options configure a Pipeline beyond its two collaborators.
type Options struct {
	Defs              []*overlay.Definition
	WindowSize        int           // pre-render window in seconds, default 10
	RecaptureInterval time.Duration // periodic recapture, default 30s
	RecoveryCooldown  time.Duration // pause between session restart and reset, default 10s
	HideSelectors     []string      // hidden in every capture
	Detector          detect.Params
	Stress            stress.Config
	Logger            *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.WindowSize <= 0 {
		o.WindowSize = 10
	}
	if o.RecaptureInterval <= 0 {
		o.RecaptureInterval = 30 * time.Second
	}
	if o.RecoveryCooldown <= 0 {
		o.RecoveryCooldown = 10 * time.Second
	}
	return o
}

// overlayState is the live per-widget data. It is replaced wholesale on a
// base image change, never mutated in place.
type overlayState struct {
	def    *overlay.Definition
	region image.Rectangle // widget region clamped to device bounds
	crop   *image.RGBA     // base pixels under the widget, origin bounds
	cache  *clockcache.Cache
}

// Pipeline composites overlays over the captured base image and keeps the
// framebuffer current.
type Pipeline struct {
	dev    *fbdev.Device
	source capture.Source
	opts   Options
	logger *slog.Logger

	renderer *overlay.Renderer
	monitor  *stress.Monitor
	queue    *schedule.Queue
	sched    *schedule.Scheduler

	mu             sync.Mutex
	base           *image.RGBA // device-sized
	states         map[string]*overlayState
	pending        *pendingTransition
	scheduledOwner string // the clock widget feeding the display queue

	changeHint   atomic.Bool
	droppedTotal atomic.Int64

	cancel   context.CancelFunc
	taskMu   sync.Mutex
	taskStop context.CancelFunc
	taskWG   sync.WaitGroup
	wg       sync.WaitGroup
}

// New wires a pipeline from its collaborators. Start must be called
// before anything is displayed.
func New(dev *fbdev.Device, source capture.Source, opts Options) (*Pipeline, error) {
	if err := errors.NilParam(dev, source); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	p := &Pipeline{
		dev:      dev,
		source:   source,
		opts:     opts,
		logger:   opts.Logger,
		renderer: &overlay.Renderer{Logger: opts.Logger},
		monitor:  stress.NewMonitor(opts.Stress, opts.Logger),
		queue:    schedule.NewQueue(opts.WindowSize),
		states:   map[string]*overlayState{},
	}
	// the first clock widget owns the scheduled path, further clock
	// widgets fall back to direct cached writes
	for _, def := range opts.Defs {
		if def.Kind == overlay.KindClock {
			p.scheduledOwner = def.Name
			break
		}
	}
	p.sched = schedule.NewScheduler(p.queue, dev, opts.Logger)
	p.sched.OnDisplayed = func(_ int64, d time.Duration, ok bool) {
		p.monitor.RecordOperation(stress.CategoryOverlay, d, ok)
	}
	p.sched.OnDropped = func(int64) { p.droppedTotal.Add(1) }
	return p, nil
}

// Monitor exposes the stress monitor, mainly for supervision and tests.
func (p *Pipeline) Monitor() *stress.Monitor { return p.monitor }

// DroppedFrames reports the number of scheduler seconds that passed
// without a consumable operation.
func (p *Pipeline) DroppedFrames() int64 { return p.droppedTotal.Load() }

// Start captures the first base image, paints it, and brings up the
// scheduler, the per-widget tasks, the recapture task and the recovery
// supervisor. It returns once the display is live.
func (p *Pipeline) Start(ctx context.Context) error {
	base, err := p.captureBase(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	p.mu.Lock()
	p.base = base
	p.states = p.buildStates(base, now)
	p.mu.Unlock()

	if !p.paintFull(now) {
		logx.Warn(p.logger, `initial frame write failed`)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	// without a clock widget nothing ever feeds the queue, so the
	// boundary timer would only report drops
	if p.scheduledOwner != `` {
		p.sched.Start()
	}
	p.startTasks(runCtx)

	if notifier, ok := p.source.(capture.ChangeNotifier); ok {
		notifier.NotifyChange(func() { p.changeHint.Store(true) })
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.superviseRecovery(runCtx)
	}()
	logx.Info(p.logger, `pipeline started`, `overlays`, len(p.opts.Defs),
		`geometry`, p.dev.Geometry().String())
	return nil
}

// Stop cancels every periodic task and the scheduler before shared state
// is torn down, so no task can fire against a closed device or session.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.stopTasks()
	p.sched.Stop()
	p.wg.Wait()
}

// startTasks launches one periodic task per widget plus the recapture
// task under a fresh task context.
func (p *Pipeline) startTasks(parent context.Context) {
	p.taskMu.Lock()
	defer p.taskMu.Unlock()
	if p.taskStop != nil {
		return
	}
	taskCtx, stop := context.WithCancel(parent)
	p.taskStop = stop
	tasks := make([]*periodicTask, 0, len(p.opts.Defs)+1)
	for _, def := range p.opts.Defs {
		def := def
		tasks = append(tasks, newPeriodicTask(def.Name, def.Refresh, func(now time.Time) {
			p.overlayTick(def.Name, now)
		}, p.logger))
	}
	tasks = append(tasks, newPeriodicTask(`recapture`, p.opts.RecaptureInterval, func(now time.Time) {
		p.recaptureTick(taskCtx, now)
	}, p.logger))
	// push-style change notifications are polled cheaply and feed the
	// same admitted recapture path
	tasks = append(tasks, newPeriodicTask(`changeHint`, time.Second, func(now time.Time) {
		if p.changeHint.Load() {
			p.recaptureTick(taskCtx, now)
		}
	}, p.logger))
	for _, t := range tasks {
		t := t
		p.taskWG.Add(1)
		go func() {
			defer p.taskWG.Done()
			t.run(taskCtx)
		}()
	}
}

// stopTasks cancels the task context and waits for in-flight ticks.
func (p *Pipeline) stopTasks() {
	p.taskMu.Lock()
	stop := p.taskStop
	p.taskStop = nil
	p.taskMu.Unlock()
	if stop != nil {
		stop()
	}
	p.taskWG.Wait()
}

// buildStates derives the per-widget state table from a base image:
// clamped region, base crop, and for clock widgets a pre-rendered frame
// cache windowed from ref.
func (p *Pipeline) buildStates(base *image.RGBA, ref time.Time) map[string]*overlayState {
	deviceBounds := base.Bounds()
	states := make(map[string]*overlayState, len(p.opts.Defs))
	for _, def := range p.opts.Defs {
		region := def.Region.Intersect(deviceBounds)
		if region.Empty() {
			logx.Warn(p.logger, `overlay region outside device, widget disabled`,
				`overlay`, def.Name, `region`, def.Region.String())
			continue
		}
		st := &overlayState{def: def, region: region, crop: cropRGBA(base, region)}
		if def.Kind == overlay.KindClock {
			st.cache = clockcache.New(def, p.renderer, st.crop, p.opts.WindowSize, p.logger)
			st.cache.PreRender(ref, p.opts.WindowSize)
		}
		states[def.Name] = st
	}
	return states
}

// captureBase captures, decodes and resizes one screenshot to the device
// geometry.
func (p *Pipeline) captureBase(ctx context.Context) (*image.RGBA, error) {
	data, err := p.source.CaptureScreenshot(ctx, p.opts.HideSelectors)
	if err != nil {
		return nil, err
	}
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	geom := p.dev.Geometry()
	if b := img.Bounds(); b.Dx() != geom.Width || b.Dy() != geom.Height {
		img = imaging.Resize(img, geom.Width, geom.Height, imaging.Lanczos)
	}
	return toRGBA(img), nil
}

// paintFull composites the current base plus every widget at now and
// writes one full frame.
func (p *Pipeline) paintFull(now time.Time) bool {
	p.mu.Lock()
	frame := p.composeFullLocked(now)
	p.mu.Unlock()
	if frame == nil {
		return false
	}
	geom := p.dev.Geometry()
	return p.dev.WriteFull(frame.Pix, &fbdev.RawImage{
		Width: geom.Width, Height: geom.Height, Channels: 4,
	})
}

func (p *Pipeline) composeFullLocked(now time.Time) *image.RGBA {
	if p.base == nil {
		return nil
	}
	frame := image.NewRGBA(p.base.Bounds())
	draw.Draw(frame, frame.Bounds(), p.base, p.base.Bounds().Min, draw.Src)
	for _, st := range p.states {
		size := image.Point{X: st.region.Dx(), Y: st.region.Dy()}
		rendered := p.renderer.Render(st.def, now, size)
		draw.Draw(frame, st.region, rendered, image.Point{}, draw.Over)
	}
	return frame
}
