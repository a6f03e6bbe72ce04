package web2fb

import (
	"context"
	"image"
	"image/draw"
	"log/slog"
	"time"

	"github.com/jyellick/web2fb-sub000/clockcache"
	"github.com/jyellick/web2fb-sub000/detect"
	"github.com/jyellick/web2fb-sub000/fbdev"
	"github.com/jyellick/web2fb-sub000/internal/logx"
	"github.com/jyellick/web2fb-sub000/schedule"
	"github.com/jyellick/web2fb-sub000/stress"
)

// overlayTick is one widget's periodic refresh. The tick that reaches a
// pending transition's switch second applies the swap first and then
// renders from the new state, so no tick is skipped or duplicated around
// a base image change.
func (p *Pipeline) overlayTick(name string, now time.Time) {
	p.maybeApplyTransition(now)

	p.mu.Lock()
	st := p.states[name]
	scheduled := p.scheduledOwner == name
	p.mu.Unlock()
	if st == nil {
		return
	}

	start := time.Now()
	ok := true
	if st.cache != nil && scheduled {
		p.serviceClockQueue(st, now)
	} else if st.cache != nil {
		ok = p.writeCachedFrame(st, now)
	} else {
		ok = p.writeDirect(st, now)
	}
	p.monitor.RecordOperation(stress.CategoryOverlay, time.Since(start), ok)
}

// topUpWindow brings a clock cache's window back to full size ahead of
// now, re-seeding when it was never populated.
func (p *Pipeline) topUpWindow(cache *clockcache.Cache, now time.Time) {
	if !cache.NeedsMoreFrames(now) {
		return
	}
	_, end, valid := cache.Window()
	if !valid {
		cache.PreRender(now, p.opts.WindowSize)
		return
	}
	need := int(now.Unix() + int64(p.opts.WindowSize) - 1 - end)
	if need < 1 {
		need = 1
	}
	cache.ExtendWindow(need, now)
}

// serviceClockQueue keeps the clock widget's cache window ahead of the
// wall clock and feeds the display queue until it holds a full window of
// upcoming seconds.
func (p *Pipeline) serviceClockQueue(st *overlayState, now time.Time) {
	cache := st.cache
	p.topUpWindow(cache, now)
	current := now.Unix()
	for p.queue.NeedsMore(current) {
		sec := p.queue.NextUnqueuedSecond(current)
		frame := cache.Frame(time.Unix(sec, 0))
		if frame == nil {
			// window exhausted, the next tick extends it
			break
		}
		p.queue.Enqueue(&schedule.Operation{
			Kind:   schedule.KindPartial,
			Pix:    frame.Pix,
			Raw:    fbdev.RawImage{Width: frame.Width, Height: frame.Height, Channels: frame.Channels},
			Region: st.region,
			Second: sec,
		})
	}
}

// writeCachedFrame is the fast path for additional clock widgets: the
// pre-composited frame for the current second goes straight to the
// device.
func (p *Pipeline) writeCachedFrame(st *overlayState, now time.Time) bool {
	cache := st.cache
	p.topUpWindow(cache, now)
	frame := cache.Frame(now)
	if frame == nil {
		logx.Warn(p.logger, `clock cache miss`, `overlay`, st.def.Name, `second`, now.Unix())
		return false
	}
	return p.dev.WritePartial(frame.Pix, &fbdev.RawImage{
		Width: frame.Width, Height: frame.Height, Channels: frame.Channels,
	}, st.region)
}

// writeDirect renders a non-clock widget against its base crop and
// writes the region immediately.
func (p *Pipeline) writeDirect(st *overlayState, now time.Time) bool {
	size := image.Point{X: st.region.Dx(), Y: st.region.Dy()}
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	draw.Draw(dst, dst.Bounds(), st.crop, image.Point{}, draw.Src)
	rendered := p.renderer.Render(st.def, now, size)
	draw.Draw(dst, dst.Bounds(), rendered, image.Point{}, draw.Over)
	return p.dev.WritePartial(dst.Pix, &fbdev.RawImage{
		Width: size.X, Height: size.Y, Channels: 4,
	}, st.region)
}

// recaptureTick is the expensive path: capture a fresh base image,
// compare it to the live one and, when the page really changed, stage a
// transition. StressMonitor admission throttles it under load and the
// busy flags drop concurrent requests instead of queueing them.
func (p *Pipeline) recaptureTick(ctx context.Context, now time.Time) {
	if !p.monitor.ShouldAllowBaseImageRecapture() {
		logx.Debug(p.logger, `recapture not admitted`, `level`, p.monitor.Level().String())
		return
	}
	if !p.monitor.BeginBaseImage() {
		logx.Debug(p.logger, `recapture already in flight, dropped`)
		return
	}
	defer p.monitor.EndBaseImage()
	p.changeHint.Store(false)

	start := time.Now()
	newBase, err := p.captureBase(ctx)
	p.monitor.RecordOperation(stress.CategoryBaseImage, time.Since(start), err == nil)
	if logx.IsErr(p.logger, slog.LevelError, err, `op`, `recapture`) {
		return
	}

	if !p.monitor.ShouldAllowChangeDetection() {
		return
	}
	if !p.monitor.BeginChangeDetection() {
		return
	}
	defer p.monitor.EndChangeDetection()

	p.mu.Lock()
	old := p.base
	p.mu.Unlock()
	dStart := time.Now()
	res, err := detect.ChangedRegions(old, newBase, p.opts.Detector)
	p.monitor.RecordOperation(stress.CategoryBaseImage, time.Since(dStart), err == nil)
	if logx.IsErr(p.logger, slog.LevelError, err, `op`, `changeDetection`) {
		return
	}
	if !res.FullUpdateRecommended && len(res.Regions) == 0 {
		logx.Debug(p.logger, `no change detected`, `changePercent`, res.ChangePercent)
		return
	}
	logx.Info(p.logger, `source change detected`, `changePercent`, res.ChangePercent,
		`regions`, len(res.Regions), `fullUpdate`, res.FullUpdateRecommended)
	p.prepareTransition(newBase, res, now)
}
