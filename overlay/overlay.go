// Package overlay defines the configured display widgets and renders them
// to small rasters.
package overlay

import (
	"image"
	"image/color"
	"os"
	"sync"
	"time"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/jyellick/web2fb-sub000/internal/errors"
)

// Kind is the closed set of widget variants. Anything else falls back to
// an empty text raster at render time.
type Kind int

const (
	KindText Kind = iota
	KindClock
	KindDate
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return `text`
	case KindClock:
		return `clock`
	case KindDate:
		return `date`
	case KindCustom:
		return `custom`
	}
	return `unknown`
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case `text`:
		return KindText, nil
	case `clock`:
		return KindClock, nil
	case `date`:
		return KindDate, nil
	case `custom`:
		return KindCustom, nil
	}
	return 0, errors.Errorf(`unknown overlay kind %q`, s)
}

// Style controls how a widget is drawn and, for time based widgets, how
// the instant is formatted.
type Style struct {
	FontPath    string  // TTF file; empty uses the built-in bitmap face
	FontSize    float64 // points, ignored for the built-in face
	Foreground  color.RGBA
	Background  color.RGBA // zero alpha leaves the base pixels visible
	TwelveHour  bool
	ShowSeconds bool
	DateLayout  string // Go reference layout, default "Monday, January 2"
}

const defaultDateLayout = `Monday, January 2`

func (s Style) clockLayout() string {
	switch {
	case s.TwelveHour && s.ShowSeconds:
		return `3:04:05 PM`
	case s.TwelveHour:
		return `3:04 PM`
	case s.ShowSeconds:
		return `15:04:05`
	}
	return `15:04`
}

// Definition is one configured widget. Immutable once handed to the
// pipeline, except that the whole table is replaced during a base image
// transition.
type Definition struct {
	Name     string
	Kind     Kind
	Region   image.Rectangle // region of the source image the widget covers
	Style    Style
	Refresh  time.Duration // per-widget tick interval, default 1s
	Text     string        // KindText content
	Generate func(at time.Time) string // KindCustom only

	faceOnce sync.Once
	face     font.Face
	faceErr  error
}

// Face resolves the font face for this widget, loading the configured TTF
// once. Load failures fall back to the built-in face so a bad font path
// degrades instead of blanking the widget.
func (d *Definition) Face() (font.Face, error) {
	d.faceOnce.Do(func() {
		if d.Style.FontPath == `` {
			d.face = basicfont.Face7x13
			return
		}
		raw, err := os.ReadFile(d.Style.FontPath)
		if err != nil {
			d.face, d.faceErr = basicfont.Face7x13, errors.New(err)
			return
		}
		f, err := truetype.Parse(raw)
		if err != nil {
			d.face, d.faceErr = basicfont.Face7x13, errors.New(err)
			return
		}
		size := d.Style.FontSize
		if size <= 0 {
			size = 24
		}
		d.face = truetype.NewFace(f, &truetype.Options{Size: size})
	})
	return d.face, d.faceErr
}
