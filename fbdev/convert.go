package fbdev

import (
	"bytes"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"

	"github.com/jyellick/web2fb-sub000/internal/errors"
)

// RawImage describes an undecoded pixel buffer: Channels is 3 for RGB,
// 4 for RGBA. Writes carrying a RawImage skip image decoding entirely.
type RawImage struct {
	Width    int
	Height   int
	Channels int
}

func (r *RawImage) valid(buflen int) bool {
	return r != nil && (r.Channels == 3 || r.Channels == 4) &&
		r.Width > 0 && r.Height > 0 && buflen >= r.Width*r.Height*r.Channels
}

// convert reshapes pix (RGB or RGBA scanlines, no padding) into the device
// pixel format. The returned slice aliases either pix (when the layout
// already matches) or the reusable scratch buffer, which grows to the
// largest request seen. Callers hold d.mu for the scratch lifetime.
func (d *Device) convert(pix []byte, w, h, channels int) ([]byte, error) {
	n := w * h
	switch d.geom.BitsPerPixel {
	case 32:
		if channels == 4 {
			return pix[:n*4], nil
		}
		out := d.scratchFor(n * 4)
		for i := 0; i < n; i++ {
			out[i*4+0] = pix[i*3+0]
			out[i*4+1] = pix[i*3+1]
			out[i*4+2] = pix[i*3+2]
			out[i*4+3] = 0xFF
		}
		return out, nil
	case 24:
		if channels == 3 {
			return pix[:n*3], nil
		}
		out := d.scratchFor(n * 3)
		for i := 0; i < n; i++ {
			out[i*3+0] = pix[i*4+0]
			out[i*3+1] = pix[i*4+1]
			out[i*3+2] = pix[i*4+2]
		}
		return out, nil
	case 16:
		return d.convertTo16bpp(pix, n, channels), nil
	}
	return nil, errors.Errorf(`%dbpp: %w`, d.geom.BitsPerPixel, ErrUnsupportedPixelFormat)
}

// convertTo16bpp packs 8-8-8 color into RGB565, one little-endian 16-bit
// word per pixel.
func (d *Device) convertTo16bpp(pix []byte, n, channels int) []byte {
	out := d.scratchFor(n * 2)
	for i := 0; i < n; i++ {
		r := pix[i*channels+0]
		g := pix[i*channels+1]
		b := pix[i*channels+2]
		v := (uint16(r>>3)&0x1F)<<11 | (uint16(g>>2)&0x3F)<<5 | uint16(b>>3)&0x1F
		out[i*2+0] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func (d *Device) scratchFor(n int) []byte {
	if cap(d.scratch) < n {
		d.scratch = make([]byte, n)
	}
	return d.scratch[:n]
}

// decodeToRaw decodes an encoded image (PNG or JPEG) into tightly packed
// RGBA scanlines.
func decodeToRaw(data []byte) ([]byte, *RawImage, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, errors.New(err)
	}
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		tmp := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(tmp, tmp.Bounds(), img, b.Min, draw.Src)
		rgba = tmp
	}
	return rgba.Pix, &RawImage{Width: b.Dx(), Height: b.Dy(), Channels: 4}, nil
}
