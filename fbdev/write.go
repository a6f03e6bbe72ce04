package fbdev

import (
	"image"

	"github.com/jyellick/web2fb-sub000/internal/errors"
	"github.com/jyellick/web2fb-sub000/internal/logx"
)

// WriteFull paints one whole frame at offset 0. With raw metadata the
// buffer is used as-is apart from the channel layout conversion; without
// it the buffer is decoded as an encoded image first. The frame must match
// the device size. Failures are logged and reported as false, never
// propagated.
func (d *Device) WriteFull(buf []byte, raw *RawImage) bool {
	if d == nil || d.f == nil {
		return false
	}
	d.mu.Lock()
	err := d.writeFull(buf, raw)
	d.mu.Unlock()
	if logx.IsErr(d.logger, errLevel, err, `op`, `writeFull`) {
		return false
	}
	return true
}

func (d *Device) writeFull(buf []byte, raw *RawImage) error {
	pix, raw, err := d.rawPixels(buf, raw)
	if err != nil {
		return err
	}
	if raw.Width != d.geom.Width || raw.Height != d.geom.Height {
		return errors.Errorf(`full frame %dx%d does not match device %s`,
			raw.Width, raw.Height, d.geom)
	}
	out, err := d.convert(pix, raw.Width, raw.Height, raw.Channels)
	if err != nil {
		return err
	}
	if _, err := d.f.WriteAt(out, 0); err != nil {
		return errors.New(err)
	}
	return nil
}

// WritePartial paints one region. Destination rows are not contiguous in
// the device, so the converted buffer is written one scanline at a time at
// (region.y+y)*stride + region.x*bytesPerPixel.
func (d *Device) WritePartial(buf []byte, raw *RawImage, region image.Rectangle) bool {
	if d == nil || d.f == nil {
		return false
	}
	d.mu.Lock()
	err := d.writePartial(buf, raw, region)
	d.mu.Unlock()
	if logx.IsErr(d.logger, errLevel, err, `op`, `writePartial`, `region`, region.String()) {
		return false
	}
	return true
}

func (d *Device) writePartial(buf []byte, raw *RawImage, region image.Rectangle) error {
	pix, raw, err := d.rawPixels(buf, raw)
	if err != nil {
		return err
	}
	if raw.Width != region.Dx() || raw.Height != region.Dy() {
		return errors.Errorf(`buffer %dx%d does not match region %s`,
			raw.Width, raw.Height, region)
	}
	deviceBounds := image.Rect(0, 0, d.geom.Width, d.geom.Height)
	if !region.In(deviceBounds) {
		return errors.Errorf(`region %s outside device %s`, region, d.geom)
	}
	out, err := d.convert(pix, raw.Width, raw.Height, raw.Channels)
	if err != nil {
		return err
	}
	bpp := d.geom.BytesPerPixel()
	rowLen := region.Dx() * bpp
	for y := 0; y < region.Dy(); y++ {
		off := int64((region.Min.Y+y)*d.geom.Stride() + region.Min.X*bpp)
		if _, err := d.f.WriteAt(out[y*rowLen:(y+1)*rowLen], off); err != nil {
			return errors.New(err)
		}
	}
	return nil
}

func (d *Device) rawPixels(buf []byte, raw *RawImage) ([]byte, *RawImage, error) {
	if raw == nil {
		return decodeToRaw(buf)
	}
	if !raw.valid(len(buf)) {
		return nil, nil, errors.Errorf(`bad raw metadata %dx%dx%d for %d bytes`,
			raw.Width, raw.Height, raw.Channels, len(buf))
	}
	return buf, raw, nil
}
