package overlay

import (
	"image"
	"log/slog"
	"time"

	"github.com/fogleman/gg"

	"github.com/jyellick/web2fb-sub000/internal/logx"
)

// Renderer maps (definition, instant, size) to a raster. It holds no
// mutable state and is safe for concurrent use across distinct widgets.
type Renderer struct {
	Logger *slog.Logger
}

// Render draws one widget for the given instant into a size.X x size.Y
// RGBA raster. It never fails: an unknown kind or a nil custom generator
// produces an empty raster and a warning.
func (r *Renderer) Render(def *Definition, at time.Time, size image.Point) *image.RGBA {
	if size.X <= 0 || size.Y <= 0 {
		return image.NewRGBA(image.Rectangle{})
	}
	dc := gg.NewContext(size.X, size.Y)
	if def.Style.Background.A > 0 {
		dc.SetColor(def.Style.Background)
		dc.Clear()
	}
	text := r.text(def, at)
	if text != `` {
		face, err := def.Face()
		logx.IsErr(r.logger(), slog.LevelWarn, err, `overlay`, def.Name)
		dc.SetFontFace(face)
		fg := def.Style.Foreground
		if fg.A == 0 {
			fg.R, fg.G, fg.B, fg.A = 0xFF, 0xFF, 0xFF, 0xFF
		}
		dc.SetColor(fg)
		dc.DrawStringAnchored(text, float64(size.X)/2, float64(size.Y)/2, 0.5, 0.5)
	}
	out, ok := dc.Image().(*image.RGBA)
	if !ok {
		// gg contexts are RGBA backed, this arm is unreachable in practice
		out = image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
	}
	return out
}

func (r *Renderer) text(def *Definition, at time.Time) string {
	switch def.Kind {
	case KindClock:
		return at.Format(def.Style.clockLayout())
	case KindDate:
		layout := def.Style.DateLayout
		if layout == `` {
			layout = defaultDateLayout
		}
		return at.Format(layout)
	case KindText:
		return def.Text
	case KindCustom:
		if def.Generate == nil {
			logx.Warn(r.logger(), `custom overlay without generator`, `overlay`, def.Name)
			return ``
		}
		return def.Generate(at)
	}
	logx.Warn(r.logger(), `unknown overlay kind`, `overlay`, def.Name, `kind`, int(def.Kind))
	return ``
}

func (r *Renderer) logger() *slog.Logger {
	if r == nil {
		return nil
	}
	return r.Logger
}
