// Package fbdev writes pixel data to a Linux framebuffer device file.
//
// The device is opened once and kept for the process lifetime. Geometry is
// read from sysfs next to the device node; when that fails the caller's
// fallback geometry is used at 32 bits per pixel. Only the open can fail
// fatally, write failures are logged and reported as a boolean so a flaky
// device never takes the display loop down.
package fbdev

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/jyellick/web2fb-sub000/internal/errors"
	"github.com/jyellick/web2fb-sub000/internal/logx"
)

// Geometry describes the shape of the device as set at open. Immutable
// until restart.
type Geometry struct {
	Width        int
	Height       int
	BitsPerPixel int
}

func (g Geometry) BytesPerPixel() int { return g.BitsPerPixel / 8 }

// Stride is the byte length of one device scanline.
func (g Geometry) Stride() int { return g.Width * g.BytesPerPixel() }

// FrameBytes is the byte length of one full frame.
func (g Geometry) FrameBytes() int { return g.Width * g.Height * g.BytesPerPixel() }

func (g Geometry) String() string {
	return fmt.Sprintf(`%dx%d@%dbpp`, g.Width, g.Height, g.BitsPerPixel)
}

// ErrUnsupportedPixelFormat is returned for depths outside 16, 24 and 32 bpp.
var ErrUnsupportedPixelFormat = errors.New(`unsupported pixel format`)

const errLevel = slog.LevelError

// Device is a write-only pixel sink backed by a framebuffer device file.
// Writes are serialized: the overlay tasks, the scheduler timer and the
// transition apply all write concurrently, and they share the conversion
// scratch buffer.
type Device struct {
	f      *os.File
	geom   Geometry
	logger *slog.Logger

	mu      sync.Mutex
	scratch []byte
}

// Open opens the framebuffer device and detects its geometry. Geometry
// detection never fails: any sysfs read problem silently falls back to the
// supplied geometry at 32 bpp. An open failure is fatal for the caller.
func Open(path string, fallback Geometry, logger *slog.Logger) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, os.ModeDevice)
	if err != nil {
		return nil, errors.New(err)
	}
	geom := detectGeometry(sysfsDir(path), fallback)
	switch geom.BitsPerPixel {
	case 16, 24, 32:
	default:
		_ = f.Close()
		return nil, errors.Errorf(`%dbpp: %w`, geom.BitsPerPixel, ErrUnsupportedPixelFormat)
	}
	logx.Info(logger, `framebuffer open`, `path`, path, `geometry`, geom.String())
	return &Device{f: f, geom: geom, logger: logger}, nil
}

func (d *Device) Geometry() Geometry { return d.geom }

func (d *Device) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	if err := d.f.Close(); err != nil {
		return errors.New(err)
	}
	return nil
}

// sysfsDir maps a device node like /dev/fb0 to /sys/class/graphics/fb0.
func sysfsDir(devPath string) string {
	return filepath.Join(`/sys/class/graphics`, filepath.Base(devPath))
}

// detectGeometry reads the two sysfs values exposed for the device:
// virtual_size ("W,H") and bits_per_pixel ("N"). It never returns an
// error, a failed or malformed read yields the fallback at 32 bpp.
func detectGeometry(dir string, fallback Geometry) Geometry {
	geom := fallback
	if geom.BitsPerPixel == 0 {
		geom.BitsPerPixel = 32
	}
	sizeRaw, err := os.ReadFile(filepath.Join(dir, `virtual_size`))
	if err != nil {
		return geom
	}
	w, h, ok := strings.Cut(strings.TrimSpace(string(sizeRaw)), `,`)
	if !ok {
		return geom
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return geom
	}
	geom.Width, geom.Height = width, height
	bppRaw, err := os.ReadFile(filepath.Join(dir, `bits_per_pixel`))
	if err != nil {
		return geom
	}
	if bpp, err := strconv.Atoi(strings.TrimSpace(string(bppRaw))); err == nil && bpp > 0 {
		geom.BitsPerPixel = bpp
	}
	return geom
}
