package web2fb

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyellick/web2fb-sub000/capture/filesrc"
	"github.com/jyellick/web2fb-sub000/fbdev"
	"github.com/jyellick/web2fb-sub000/internal/testutil"
	"github.com/jyellick/web2fb-sub000/overlay"
)

const (
	testW = 64
	testH = 48
)

func testDefs() []*overlay.Definition {
	return []*overlay.Definition{
		{
			Name:    `clock`,
			Kind:    overlay.KindClock,
			Region:  image.Rect(4, 4, 44, 20),
			Style:   overlay.Style{ShowSeconds: true},
			Refresh: time.Second,
		},
		{
			Name:    `motd`,
			Kind:    overlay.KindText,
			Region:  image.Rect(4, 28, 44, 44),
			Text:    `hi`,
			Refresh: time.Second,
		},
	}
}

func testSetup(t *testing.T, c color.RGBA) (*Pipeline, *filesrc.Source, string) {
	t.Helper()
	return testSetupDefs(t, c, testDefs())
}

func testSetupDefs(t *testing.T, c color.RGBA, defs []*overlay.Definition) (*Pipeline, *filesrc.Source, string) {
	t.Helper()
	dir := t.TempDir()

	devPath := filepath.Join(dir, `fb0`)
	require.NoError(t, os.WriteFile(devPath, nil, 0o644))
	dev, err := fbdev.Open(devPath, fbdev.Geometry{Width: testW, Height: testH}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })

	srcPath := filepath.Join(dir, `page.png`)
	require.NoError(t, os.WriteFile(srcPath, testutil.EncodePNG(testutil.UniformRGBA(testW, testH, c)), 0o644))
	src := filesrc.New(srcPath)

	p, err := New(dev, src, Options{Defs: defs, WindowSize: 5})
	require.NoError(t, err)
	return p, src, devPath
}

func TestNewRejectsNilCollaborators(t *testing.T) {
	_, err := New(nil, nil, Options{})
	assert.Error(t, err)
}

func TestStartPaintsInitialFrame(t *testing.T) {
	p, _, devPath := testSetup(t, color.RGBA{R: 50, G: 60, B: 70, A: 0xFF})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	data, err := os.ReadFile(devPath)
	require.NoError(t, err)
	require.Len(t, data, testW*testH*4)
	// a corner pixel outside every widget is pure base
	assert.Equal(t, []byte{50, 60, 70, 0xFF}, data[:4])
}

func TestBuildStatesClampsAndDisables(t *testing.T) {
	p, _, _ := testSetup(t, color.RGBA{A: 0xFF})
	base := testutil.UniformRGBA(testW, testH, color.RGBA{A: 0xFF})
	p.opts.Defs = append(p.opts.Defs, &overlay.Definition{
		Name:   `offscreen`,
		Kind:   overlay.KindText,
		Region: image.Rect(1000, 1000, 1100, 1100),
	})
	states := p.buildStates(base, time.Now())
	require.Contains(t, states, `clock`)
	assert.NotContains(t, states, `offscreen`)
	assert.NotNil(t, states[`clock`].cache, `clock widgets get a frame cache`)
	assert.Nil(t, states[`motd`].cache)

	start, end, ok := states[`clock`].cache.Window()
	require.True(t, ok)
	assert.Equal(t, int64(4), end-start, `window sized from options`)
}

func TestOverlayTickFillsQueue(t *testing.T) {
	p, _, _ := testSetup(t, color.RGBA{A: 0xFF})
	ctx := context.Background()
	base, err := p.captureBase(ctx)
	require.NoError(t, err)
	now := time.Now()
	p.base = base
	p.states = p.buildStates(base, now)

	require.Equal(t, `clock`, p.scheduledOwner)
	p.overlayTick(`clock`, now)

	assert.False(t, p.queue.NeedsMore(now.Unix()), `queue filled to the window`)
	op := p.queue.Dequeue(p.queue.NextUnqueuedSecond(now.Unix()) - 1)
	require.NotNil(t, op)
	assert.Equal(t, p.states[`clock`].region, op.Region)
}

func TestDirectWritePath(t *testing.T) {
	p, _, devPath := testSetup(t, color.RGBA{R: 9, G: 9, B: 9, A: 0xFF})
	ctx := context.Background()
	base, err := p.captureBase(ctx)
	require.NoError(t, err)
	p.base = base
	p.states = p.buildStates(base, time.Now())

	p.overlayTick(`motd`, time.Now())
	data, err := os.ReadFile(devPath)
	require.NoError(t, err)
	region := p.states[`motd`].region
	off := region.Min.Y*testW*4 + region.Min.X*4
	require.Greater(t, len(data), off)
	assert.Equal(t, byte(9), data[off], `region rewritten from its base crop`)
}

func TestTransitionLifecycle(t *testing.T) {
	p, src, _ := testSetup(t, color.RGBA{R: 10, G: 10, B: 10, A: 0xFF})
	ctx := context.Background()
	base, err := p.captureBase(ctx)
	require.NoError(t, err)
	now := time.Now()
	p.base = base
	p.states = p.buildStates(base, now)
	oldStates := p.states

	// the page changes completely
	require.NoError(t, os.WriteFile(src.Path,
		testutil.EncodePNG(testutil.UniformRGBA(testW, testH, color.RGBA{R: 200, G: 10, B: 10, A: 0xFF})), 0o644))

	p.recaptureTick(ctx, now)

	p.mu.Lock()
	pt := p.pending
	p.mu.Unlock()
	require.NotNil(t, pt, `transition staged`)
	assert.True(t, pt.full)
	assert.Greater(t, pt.switchSecond, now.Unix())

	// before the switch second nothing is applied
	p.maybeApplyTransition(time.Unix(pt.switchSecond-1, 0))
	assert.Same(t, base, p.base)

	// at the switch second everything swaps in one step
	p.maybeApplyTransition(time.Unix(pt.switchSecond, 0))
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Nil(t, p.pending)
	assert.NotSame(t, base, p.base)
	assert.NotSame(t, oldStates[`clock`], p.states[`clock`], `state table replaced wholesale`)
	assert.Equal(t, uint8(200), p.base.RGBAAt(0, 0).R)
	assert.Equal(t, uint8(200), p.states[`motd`].crop.RGBAAt(0, 0).R,
		`new crops derive from the new base`)
}

func TestUnchangedPageStagesNothing(t *testing.T) {
	p, _, _ := testSetup(t, color.RGBA{R: 10, G: 10, B: 10, A: 0xFF})
	ctx := context.Background()
	base, err := p.captureBase(ctx)
	require.NoError(t, err)
	p.base = base
	p.states = p.buildStates(base, time.Now())

	p.recaptureTick(ctx, time.Now())
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Nil(t, p.pending)
}

func TestSupersedingTransition(t *testing.T) {
	p, src, _ := testSetup(t, color.RGBA{R: 10, G: 10, B: 10, A: 0xFF})
	ctx := context.Background()
	base, err := p.captureBase(ctx)
	require.NoError(t, err)
	p.base = base
	p.states = p.buildStates(base, time.Now())

	for _, c := range []color.RGBA{{R: 200, A: 0xFF}, {G: 200, A: 0xFF}} {
		require.NoError(t, os.WriteFile(src.Path,
			testutil.EncodePNG(testutil.UniformRGBA(testW, testH, c)), 0o644))
		p.recaptureTick(ctx, time.Now())
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotNil(t, p.pending)
	assert.Equal(t, uint8(200), p.pending.base.RGBAAt(0, 0).G, `last writer wins`)
}

func TestSchedulerIdleWithoutClockWidgets(t *testing.T) {
	defs := []*overlay.Definition{{
		Name:    `motd`,
		Kind:    overlay.KindText,
		Region:  image.Rect(4, 28, 44, 44),
		Text:    `hi`,
		Refresh: time.Second,
	}}
	p, _, _ := testSetupDefs(t, color.RGBA{A: 0xFF}, defs)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, p.Start(ctx))
	defer p.Stop()

	assert.Empty(t, p.scheduledOwner)
	assert.False(t, p.sched.Running(), `no queue feeder, no boundary timer`)
	assert.Zero(t, p.DroppedFrames())
}

func TestStopIsCleanWithoutStart(t *testing.T) {
	p, _, _ := testSetup(t, color.RGBA{A: 0xFF})
	p.Stop()
}
