package fbdev

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSysfs(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDetectGeometry(t *testing.T) {
	fallback := Geometry{Width: 640, Height: 480}

	t.Run(`missing sysfs falls back at 32bpp`, func(t *testing.T) {
		geom := detectGeometry(filepath.Join(t.TempDir(), `nope`), fallback)
		assert.Equal(t, Geometry{Width: 640, Height: 480, BitsPerPixel: 32}, geom)
	})

	t.Run(`reads virtual_size and bits_per_pixel`, func(t *testing.T) {
		dir := t.TempDir()
		writeSysfs(t, dir, `virtual_size`, "800,480\n")
		writeSysfs(t, dir, `bits_per_pixel`, "16\n")
		geom := detectGeometry(dir, fallback)
		assert.Equal(t, Geometry{Width: 800, Height: 480, BitsPerPixel: 16}, geom)
	})

	t.Run(`malformed size falls back`, func(t *testing.T) {
		dir := t.TempDir()
		writeSysfs(t, dir, `virtual_size`, "800x480\n")
		geom := detectGeometry(dir, fallback)
		assert.Equal(t, Geometry{Width: 640, Height: 480, BitsPerPixel: 32}, geom)
	})

	t.Run(`missing bpp keeps fallback depth`, func(t *testing.T) {
		dir := t.TempDir()
		writeSysfs(t, dir, `virtual_size`, "320,240\n")
		geom := detectGeometry(dir, Geometry{Width: 1, Height: 1, BitsPerPixel: 24})
		assert.Equal(t, Geometry{Width: 320, Height: 240, BitsPerPixel: 24}, geom)
	})
}

func TestGeometryDerived(t *testing.T) {
	g := Geometry{Width: 800, Height: 480, BitsPerPixel: 16}
	assert.Equal(t, 2, g.BytesPerPixel())
	assert.Equal(t, 1600, g.Stride())
	assert.Equal(t, 800*480*2, g.FrameBytes())
}

func TestOpenMissingDeviceIsFatal(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), `fb0`), Geometry{Width: 8, Height: 4}, nil)
	require.Error(t, err)
}

// openTestDevice backs the device with a regular file, geometry detection
// falls back to the supplied shape.
func openTestDevice(t *testing.T, geom Geometry) (*Device, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), `fb0`)
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	dev, err := Open(path, geom, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dev.Close() })
	return dev, path
}

func TestOpenRejectsUnsupportedDepth(t *testing.T) {
	path := filepath.Join(t.TempDir(), `fb0`)
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	_, err := Open(path, Geometry{Width: 8, Height: 4, BitsPerPixel: 12}, nil)
	require.ErrorIs(t, err, ErrUnsupportedPixelFormat)
}
