// Package detect compares two full frames and proposes minimal changed
// rectangles, or recommends a full repaint when most of the frame moved.
package detect

import (
	"image"
	"math"

	"github.com/jyellick/web2fb-sub000/internal/errors"
)

// ErrDimensionMismatch is returned when the compared frames differ in
// size. No partial result accompanies it.
var ErrDimensionMismatch = errors.New(`image dimensions differ`)

// Params are the detector tunables. The defaults mirror long-standing
// field values and are deliberately kept configurable rather than
// re-derived.
type Params struct {
	Threshold         uint8   // per-channel delta above which a pixel counts as changed
	MinRegionSize     int     // discard regions with a bounding box area below this
	MergeDistance     float64 // merge regions with edge distance at or below this
	FullUpdatePercent float64 // recommend a full repaint above this changed fraction
}

func DefaultParams() Params {
	return Params{
		Threshold:         10,
		MinRegionSize:     1000,
		MergeDistance:     50,
		FullUpdatePercent: 70,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Threshold == 0 {
		p.Threshold = d.Threshold
	}
	if p.MinRegionSize <= 0 {
		p.MinRegionSize = d.MinRegionSize
	}
	if p.MergeDistance <= 0 {
		p.MergeDistance = d.MergeDistance
	}
	if p.FullUpdatePercent <= 0 {
		p.FullUpdatePercent = d.FullUpdatePercent
	}
	return p
}

// Result reports what changed between two frames. Regions is nil when a
// full update is recommended.
type Result struct {
	Regions               []image.Rectangle
	ChangePercent         float64
	FullUpdateRecommended bool
}

// ChangedRegions diffs oldImg against newImg pixel by pixel on the RGB
// channels. Connected changed areas become axis-aligned bounding boxes,
// small boxes are discarded and nearby boxes merged, bounding the number
// of partial writes performed downstream.
func ChangedRegions(oldImg, newImg *image.RGBA, p Params) (*Result, error) {
	if err := errors.NilParam(oldImg, newImg); err != nil {
		return nil, err
	}
	ob, nb := oldImg.Bounds(), newImg.Bounds()
	if ob.Dx() != nb.Dx() || ob.Dy() != nb.Dy() {
		return nil, errors.Errorf(`%dx%d vs %dx%d: %w`,
			ob.Dx(), ob.Dy(), nb.Dx(), nb.Dy(), ErrDimensionMismatch)
	}
	p = p.withDefaults()

	w, h := ob.Dx(), ob.Dy()
	mask := make([]bool, w*h)
	changed := 0
	for y := 0; y < h; y++ {
		oRow := oldImg.Pix[(y+ob.Min.Y-oldImg.Rect.Min.Y)*oldImg.Stride:]
		nRow := newImg.Pix[(y+nb.Min.Y-newImg.Rect.Min.Y)*newImg.Stride:]
		for x := 0; x < w; x++ {
			oi := (x + ob.Min.X - oldImg.Rect.Min.X) * 4
			ni := (x + nb.Min.X - newImg.Rect.Min.X) * 4
			if absDiff(oRow[oi], nRow[ni]) > p.Threshold ||
				absDiff(oRow[oi+1], nRow[ni+1]) > p.Threshold ||
				absDiff(oRow[oi+2], nRow[ni+2]) > p.Threshold {
				mask[y*w+x] = true
				changed++
			}
		}
	}

	percent := float64(changed) / float64(w*h) * 100
	if percent > p.FullUpdatePercent {
		return &Result{ChangePercent: percent, FullUpdateRecommended: true}, nil
	}

	boxes := connectedBoxes(mask, w, h)
	kept := boxes[:0]
	for _, b := range boxes {
		if b.Dx()*b.Dy() >= p.MinRegionSize {
			kept = append(kept, b)
		}
	}
	return &Result{
		Regions:       mergeBoxes(kept, p.MergeDistance),
		ChangePercent: percent,
	}, nil
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

// connectedBoxes runs a 4-connected flood fill over the change mask and
// returns one bounding box per component. The mask is consumed.
func connectedBoxes(mask []bool, w, h int) []image.Rectangle {
	var boxes []image.Rectangle
	var stack []int
	for i := range mask {
		if !mask[i] {
			continue
		}
		mask[i] = false
		box := image.Rect(i%w, i/w, i%w+1, i/w+1)
		stack = append(stack[:0], i)
		for len(stack) > 0 {
			j := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := j%w, j/w
			box = box.Union(image.Rect(x, y, x+1, y+1))
			for _, n := range [4]int{j - w, j + w, j - 1, j + 1} {
				if n < 0 || n >= len(mask) || !mask[n] {
					continue
				}
				// horizontal neighbors must stay on the row
				if (n == j-1 || n == j+1) && n/w != y {
					continue
				}
				mask[n] = false
				stack = append(stack, n)
			}
		}
		boxes = append(boxes, box)
	}
	return boxes
}

// mergeBoxes repeatedly unions any two boxes whose edge-to-edge distance
// is at or below dist, until a fixpoint.
func mergeBoxes(boxes []image.Rectangle, dist float64) []image.Rectangle {
	for {
		merged := false
	outer:
		for i := 0; i < len(boxes); i++ {
			for j := i + 1; j < len(boxes); j++ {
				if boxDistance(boxes[i], boxes[j]) <= dist {
					boxes[i] = boxes[i].Union(boxes[j])
					boxes = append(boxes[:j], boxes[j+1:]...)
					merged = true
					break outer
				}
			}
		}
		if !merged {
			return boxes
		}
	}
}

// boxDistance is the Euclidean distance between the closest edges of two
// rectangles, zero if they overlap or touch.
func boxDistance(a, b image.Rectangle) float64 {
	dx := gap(a.Min.X, a.Max.X, b.Min.X, b.Max.X)
	dy := gap(a.Min.Y, a.Max.Y, b.Min.Y, b.Max.Y)
	return math.Hypot(float64(dx), float64(dy))
}

func gap(aMin, aMax, bMin, bMax int) int {
	switch {
	case aMax < bMin:
		return bMin - aMax
	case bMax < aMin:
		return aMin - bMax
	}
	return 0
}
