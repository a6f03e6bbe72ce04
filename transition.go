package web2fb

import (
	"image"
	"time"

	"github.com/jyellick/web2fb-sub000/detect"
	"github.com/jyellick/web2fb-sub000/fbdev"
	"github.com/jyellick/web2fb-sub000/internal/logx"
)

// pendingTransition is an in-flight base image swap. At most one exists;
// a newer change supersedes an older pending one. It is consumed
// atomically at switchSecond or discarded on failure.
type pendingTransition struct {
	base         *image.RGBA
	states       map[string]*overlayState
	switchSecond int64
	regions      []image.Rectangle // partial repaint, nil means full
	full         bool
}

// prepareTransition builds the next generation of state against the new
// base image while the old generation keeps being served: new crops for
// every widget and new clock caches windowed from the switch second.
func (p *Pipeline) prepareTransition(newBase *image.RGBA, res *detect.Result, _ time.Time) {
	switchSecond := time.Now().Unix() + 1
	states := p.buildStates(newBase, time.Unix(switchSecond, 0))

	full := res.FullUpdateRecommended
	if !full {
		// a changed region under a widget invalidates its crop, the
		// composited full write covers that case
		for _, st := range states {
			for _, r := range res.Regions {
				if r.Overlaps(st.region) {
					full = true
					break
				}
			}
		}
	}

	pt := &pendingTransition{
		base:         newBase,
		states:       states,
		switchSecond: switchSecond,
		regions:      res.Regions,
		full:         full,
	}
	p.mu.Lock()
	superseded := p.pending != nil
	p.pending = pt // last writer wins
	p.mu.Unlock()
	if superseded {
		logx.Info(p.logger, `pending transition superseded`, `switchSecond`, switchSecond)
	} else {
		logx.Info(p.logger, `transition staged`, `switchSecond`, switchSecond, `full`, full)
	}
}

// maybeApplyTransition commits the pending swap once wall clock reaches
// the switch second: base image, widget state table and caches are
// replaced in one step, then the visible change is written. Every render
// on every widget observes all-old or all-new state, never a mixture.
func (p *Pipeline) maybeApplyTransition(now time.Time) {
	p.mu.Lock()
	pt := p.pending
	if pt == nil || now.Unix() < pt.switchSecond {
		p.mu.Unlock()
		return
	}
	p.pending = nil
	p.base = pt.base
	p.states = pt.states
	var frame *image.RGBA
	if pt.full {
		frame = p.composeFullLocked(now)
	}
	base := p.base
	p.mu.Unlock()

	// old queue entries were composited against the old base
	p.queue.Clear()

	geom := p.dev.Geometry()
	if pt.full {
		ok := p.dev.WriteFull(frame.Pix, &fbdev.RawImage{
			Width: geom.Width, Height: geom.Height, Channels: 4,
		})
		logx.Info(p.logger, `transition applied`, `switchSecond`, pt.switchSecond,
			`mode`, `full`, `ok`, ok)
		return
	}
	for _, r := range pt.regions {
		crop := cropRGBA(base, r)
		p.dev.WritePartial(crop.Pix, &fbdev.RawImage{
			Width: r.Dx(), Height: r.Dy(), Channels: 4,
		}, r)
	}
	logx.Info(p.logger, `transition applied`, `switchSecond`, pt.switchSecond,
		`mode`, `partial`, `regions`, len(pt.regions))
}
