// Package clockcache pre-composites one frame per upcoming second for a
// clock widget. Compositing dominates the per-tick cost, so rendering the
// window ahead of time turns the steady-state tick into a map lookup.
//
// A cache is owned by a single goroutine: the widget's periodic task for
// the live cache, the transition coordinator for a cache being prepared.
package clockcache

import (
	"image"
	"image/draw"
	"log/slog"
	"time"

	"github.com/jyellick/web2fb-sub000/internal/logx"
	"github.com/jyellick/web2fb-sub000/overlay"
)

// Frame is one second's composited output as raw RGBA scanlines.
type Frame struct {
	Pix      []byte
	Width    int
	Height   int
	Channels int
}

// Cache holds the contiguous window of pre-rendered seconds for one clock
// widget. Invariant while valid: windowEnd-windowStart+1 == len(frames).
type Cache struct {
	def      *overlay.Definition
	renderer *overlay.Renderer
	base     *image.RGBA // widget-region crop of the base image, origin bounds
	window   int         // target window size

	frames      map[int64]*Frame
	windowStart int64
	windowEnd   int64
	valid       bool

	logger *slog.Logger
}

func New(def *overlay.Definition, renderer *overlay.Renderer, base *image.RGBA, window int, logger *slog.Logger) *Cache {
	if window < 1 {
		window = 1
	}
	return &Cache{
		def:      def,
		renderer: renderer,
		base:     base,
		window:   window,
		frames:   map[int64]*Frame{},
		logger:   logger,
	}
}

// PreRender populates the window [floor(ref), floor(ref)+count-1],
// replacing any previous contents.
func (c *Cache) PreRender(ref time.Time, count int) {
	if count < 1 {
		count = c.window
	}
	start := ref.Unix()
	c.frames = make(map[int64]*Frame, count)
	for s := start; s < start+int64(count); s++ {
		c.frames[s] = c.composite(s, ref.Location())
	}
	c.windowStart, c.windowEnd = start, start+int64(count)-1
	c.valid = true
	logx.Debug(c.logger, `clock cache populated`, `overlay`, c.def.Name,
		`start`, c.windowStart, `end`, c.windowEnd)
}

// ExtendWindow grows the window end by n seconds and slides the start
// forward: frames older than floor(now) are evicted, and the cache never
// holds more than the target window size. When now ran so far past the
// window that n seconds cannot reach it, the whole window is stale and the
// cache re-seeds from now instead of chasing it.
func (c *Cache) ExtendWindow(n int, now time.Time) {
	if !c.valid {
		c.PreRender(now, c.window)
		return
	}
	floor := now.Unix()
	if floor > c.windowEnd+int64(n) {
		c.PreRender(now, c.window)
		return
	}
	loc := now.Location()
	for i := 0; i < n; i++ {
		c.windowEnd++
		c.frames[c.windowEnd] = c.composite(c.windowEnd, loc)
	}
	for c.windowStart < floor || c.windowEnd-c.windowStart+1 > int64(c.window) {
		delete(c.frames, c.windowStart)
		c.windowStart++
	}
}

// Frame returns the composited frame for floor(at), or nil when the
// second is outside the window. It never renders synchronously, a miss is
// the caller's signal that the window fell behind.
func (c *Cache) Frame(at time.Time) *Frame {
	if !c.valid {
		return nil
	}
	return c.frames[at.Unix()]
}

// NeedsMoreFrames reports whether the window should be extended: the
// cache is invalid, now ran past the window, or fewer than the target
// number of seconds remain at or after now.
func (c *Cache) NeedsMoreFrames(now time.Time) bool {
	if !c.valid {
		return true
	}
	floor := now.Unix()
	if floor > c.windowEnd {
		return true
	}
	remaining := c.windowEnd - max(floor, c.windowStart) + 1
	return remaining < int64(c.window)
}

// Invalidate drops every frame and returns the cache to the empty state.
func (c *Cache) Invalidate() {
	c.frames = map[int64]*Frame{}
	c.valid = false
	c.windowStart, c.windowEnd = 0, 0
}

// UpdateBaseRegion swaps the compositing source. Existing frames were
// composited against the old base pixels, so the cache is invalidated.
func (c *Cache) UpdateBaseRegion(base *image.RGBA) {
	c.base = base
	c.Invalidate()
}

// Window reports the cached range. ok is false while empty.
func (c *Cache) Window() (start, end int64, ok bool) {
	return c.windowStart, c.windowEnd, c.valid
}

func (c *Cache) Len() int { return len(c.frames) }

// composite renders the widget forced to second s and alpha-composites it
// onto the base-region crop.
func (c *Cache) composite(s int64, loc *time.Location) *Frame {
	at := time.Unix(s, 0).In(loc)
	size := image.Point{X: c.def.Region.Dx(), Y: c.def.Region.Dy()}
	if c.base != nil {
		size = image.Point{X: c.base.Bounds().Dx(), Y: c.base.Bounds().Dy()}
	}
	dst := image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	if c.base != nil {
		draw.Draw(dst, dst.Bounds(), c.base, c.base.Bounds().Min, draw.Src)
	}
	rendered := c.renderer.Render(c.def, at, size)
	draw.Draw(dst, dst.Bounds(), rendered, image.Point{}, draw.Over)
	return &Frame{Pix: dst.Pix, Width: size.X, Height: size.Y, Channels: 4}
}
