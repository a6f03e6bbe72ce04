package config

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jyellick/web2fb-sub000/overlay"
)

const sampleYAML = `
device:
  path: /dev/fb1
  fallbackWidth: 800
  fallbackHeight: 480
source:
  kind: cdp
  url: https://dash.example.net/
  pollInterval: 5s
windowSize: 8
recaptureInterval: 45s
logLevel: debug
detector:
  threshold: 12
  minRegionSize: 500
overlays:
  - name: clock
    kind: clock
    region: { x: 100, y: 100, width: 400, height: 100 }
    showSeconds: true
    foreground: "#FFFFFF"
    background: "#00000080"
  - name: motd
    kind: text
    text: hello
    refresh: 10s
    region: { x: 0, y: 400, width: 200, height: 40 }
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), `web2fb.yaml`)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, `/dev/fb1`, cfg.Device.Path)
	assert.Equal(t, 8, cfg.WindowSize)
	assert.Equal(t, 45*time.Second, cfg.RecaptureInterval.Or(0))
	assert.Equal(t, 5*time.Second, time.Duration(cfg.Source.PollInterval))

	params := cfg.DetectorParams()
	assert.Equal(t, uint8(12), params.Threshold)
	assert.Equal(t, 500, params.MinRegionSize)

	defs, err := cfg.Definitions()
	require.NoError(t, err)
	require.Len(t, defs, 2)

	clock := defs[0]
	assert.Equal(t, overlay.KindClock, clock.Kind)
	assert.Equal(t, image.Rect(100, 100, 500, 200), clock.Region)
	assert.True(t, clock.Style.ShowSeconds)
	assert.Equal(t, color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}, clock.Style.Foreground)
	assert.Equal(t, color.RGBA{A: 0x80}, clock.Style.Background)
	assert.Equal(t, time.Second, clock.Refresh, `refresh defaults to 1s`)

	motd := defs[1]
	assert.Equal(t, overlay.KindText, motd.Kind)
	assert.Equal(t, `hello`, motd.Text)
	assert.Equal(t, 10*time.Second, motd.Refresh)
}

func TestValidateDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, `/dev/fb0`, cfg.Device.Path)
	assert.Equal(t, 10, cfg.WindowSize)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		`duplicate name`: `
overlays:
  - {name: a, kind: text, region: {x: 0, y: 0, width: 10, height: 10}}
  - {name: a, kind: text, region: {x: 0, y: 0, width: 10, height: 10}}
`,
		`unknown kind`: `
overlays:
  - {name: a, kind: marquee, region: {x: 0, y: 0, width: 10, height: 10}}
`,
		`empty region`: `
overlays:
  - {name: a, kind: text, region: {x: 0, y: 0, width: 0, height: 10}}
`,
		`unknown source`: `
source: {kind: carrierpigeon}
`,
	}
	for name, body := range cases {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}
}

func TestParseColor(t *testing.T) {
	c, err := parseColor(`#FF8000`)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0xFF, G: 0x80, B: 0x00, A: 0xFF}, c)

	c, err = parseColor(`#11223344`)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0x44}, c)

	c, err = parseColor(``)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{}, c)

	for _, bad := range []string{`red`, `#12345`, `#GGGGGG`} {
		_, err := parseColor(bad)
		assert.Error(t, err, bad)
	}
}

func TestBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "recaptureInterval: soon\n"))
	assert.Error(t, err)
}
