package overlay

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, s := range []string{`text`, `clock`, `date`, `custom`} {
		kind, err := ParseKind(s)
		require.NoError(t, err)
		assert.Equal(t, s, kind.String())
	}
	_, err := ParseKind(`marquee`)
	assert.Error(t, err)
}

func TestClockLayouts(t *testing.T) {
	at := time.Date(2025, 1, 15, 14, 30, 5, 0, time.UTC)
	cases := []struct {
		style Style
		want  string
	}{
		{Style{}, `14:30`},
		{Style{ShowSeconds: true}, `14:30:05`},
		{Style{TwelveHour: true}, `2:30 PM`},
		{Style{TwelveHour: true, ShowSeconds: true}, `2:30:05 PM`},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, at.Format(c.style.clockLayout()))
	}
}

func isBlank(img *image.RGBA) bool {
	for _, b := range img.Pix {
		if b != 0 {
			return false
		}
	}
	return true
}

func TestRenderClockProducesPixels(t *testing.T) {
	r := &Renderer{}
	def := &Definition{
		Name:  `clock`,
		Kind:  KindClock,
		Style: Style{ShowSeconds: true, Foreground: color.RGBA{A: 0xFF, R: 0xFF, G: 0xFF, B: 0xFF}},
	}
	at := time.Date(2025, 1, 15, 10, 30, 5, 0, time.UTC)
	img := r.Render(def, at, image.Point{X: 200, Y: 50})
	require.Equal(t, image.Rect(0, 0, 200, 50), img.Bounds())
	assert.False(t, isBlank(img))
}

func TestRenderDistinctSeconds(t *testing.T) {
	r := &Renderer{}
	def := &Definition{Name: `clock`, Kind: KindClock, Style: Style{ShowSeconds: true}}
	base := time.Date(2025, 1, 15, 10, 30, 5, 0, time.UTC)
	a := r.Render(def, base, image.Point{X: 200, Y: 50})
	b := r.Render(def, base.Add(time.Second), image.Point{X: 200, Y: 50})
	assert.NotEqual(t, a.Pix, b.Pix)
}

func TestRenderUnknownKindDegradesToEmpty(t *testing.T) {
	r := &Renderer{}
	def := &Definition{Name: `weird`, Kind: Kind(42)}
	img := r.Render(def, time.Now(), image.Point{X: 40, Y: 20})
	require.Equal(t, image.Rect(0, 0, 40, 20), img.Bounds())
	assert.True(t, isBlank(img))
}

func TestRenderCustomGenerator(t *testing.T) {
	r := &Renderer{}
	def := &Definition{
		Name:     `counter`,
		Kind:     KindCustom,
		Generate: func(at time.Time) string { return at.Format(`05`) },
	}
	img := r.Render(def, time.Date(2025, 1, 15, 0, 0, 7, 0, time.UTC), image.Point{X: 60, Y: 20})
	assert.False(t, isBlank(img))

	def.Generate = nil
	// a fresh definition, the face cache is per definition
	def2 := &Definition{Name: `broken`, Kind: KindCustom}
	img = r.Render(def2, time.Now(), image.Point{X: 60, Y: 20})
	assert.True(t, isBlank(img))
}

func TestRenderBackgroundFill(t *testing.T) {
	r := &Renderer{}
	def := &Definition{
		Name:  `label`,
		Kind:  KindText,
		Text:  ``,
		Style: Style{Background: color.RGBA{R: 10, G: 20, B: 30, A: 0xFF}},
	}
	img := r.Render(def, time.Now(), image.Point{X: 4, Y: 4})
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 0xFF}, img.RGBAAt(0, 0))
}

func TestFaceFallsBackOnBadPath(t *testing.T) {
	def := &Definition{Name: `x`, Style: Style{FontPath: `/nonexistent.ttf`}}
	face, err := def.Face()
	assert.Error(t, err)
	assert.NotNil(t, face)
}
