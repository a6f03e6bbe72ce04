// Package config loads the daemon configuration from a YAML file and
// converts it to the pipeline's native types.
package config

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jyellick/web2fb-sub000/detect"
	"github.com/jyellick/web2fb-sub000/internal/errors"
	"github.com/jyellick/web2fb-sub000/overlay"
	"github.com/jyellick/web2fb-sub000/stress"
)

// Duration parses YAML values like "500ms" or "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return errors.New(err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.New(err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Or(fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return time.Duration(d)
}

type Config struct {
	Device   Device    `yaml:"device"`
	Source   Source    `yaml:"source"`
	Overlays []Overlay `yaml:"overlays"`
	Detector Detector  `yaml:"detector"`
	Stress   Stress    `yaml:"stress"`

	WindowSize        int      `yaml:"windowSize"`        // cache/queue window, default 10
	RecaptureInterval Duration `yaml:"recaptureInterval"` // default 30s
	RecoveryCooldown  Duration `yaml:"recoveryCooldown"`  // default 10s
	LogLevel          string   `yaml:"logLevel"`
}

type Device struct {
	Path           string `yaml:"path"` // default /dev/fb0
	FallbackWidth  int    `yaml:"fallbackWidth"`
	FallbackHeight int    `yaml:"fallbackHeight"`
}

type Source struct {
	Kind         string   `yaml:"kind"` // cdp, http or file
	URL          string   `yaml:"url"`
	Endpoint     string   `yaml:"endpoint"` // http kind: render service
	Path         string   `yaml:"path"`     // file kind
	PollInterval Duration `yaml:"pollInterval"`
	Timeout      Duration `yaml:"timeout"`
}

type Overlay struct {
	Name    string   `yaml:"name"`
	Kind    string   `yaml:"kind"`
	Region  Region   `yaml:"region"`
	Refresh Duration `yaml:"refresh"`
	Text    string   `yaml:"text"`

	FontPath    string  `yaml:"fontPath"`
	FontSize    float64 `yaml:"fontSize"`
	Foreground  string  `yaml:"foreground"` // #RRGGBB or #RRGGBBAA
	Background  string  `yaml:"background"`
	TwelveHour  bool    `yaml:"twelveHour"`
	ShowSeconds bool    `yaml:"showSeconds"`
	DateLayout  string  `yaml:"dateLayout"`
}

type Region struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

type Detector struct {
	Threshold         int     `yaml:"threshold"`
	MinRegionSize     int     `yaml:"minRegionSize"`
	MergeDistance     float64 `yaml:"mergeDistance"`
	FullUpdatePercent float64 `yaml:"fullUpdatePercent"`
}

type Stress struct {
	MaxConsecutiveSlowOps int      `yaml:"maxConsecutiveSlowOps"`
	KillThreshold         int      `yaml:"killThreshold"`
	OverlayWarning        Duration `yaml:"overlayWarning"`
	OverlayCritical       Duration `yaml:"overlayCritical"`
	BaseImageWarning      Duration `yaml:"baseImageWarning"`
	BaseImageCritical     Duration `yaml:"baseImageCritical"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.New(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Device.Path == `` {
		c.Device.Path = `/dev/fb0`
	}
	if c.WindowSize <= 0 {
		c.WindowSize = 10
	}
	seen := map[string]bool{}
	for i := range c.Overlays {
		o := &c.Overlays[i]
		if o.Name == `` {
			return errors.Errorf(`overlay %d: missing name`, i)
		}
		if seen[o.Name] {
			return errors.Errorf(`overlay %q: duplicate name`, o.Name)
		}
		seen[o.Name] = true
		if _, err := overlay.ParseKind(o.Kind); err != nil {
			return errors.WrapPrefix(err, fmt.Sprintf(`overlay %q`, o.Name), 0)
		}
		if o.Region.Width <= 0 || o.Region.Height <= 0 {
			return errors.Errorf(`overlay %q: empty region`, o.Name)
		}
	}
	switch c.Source.Kind {
	case ``, `cdp`, `http`, `file`:
	default:
		return errors.Errorf(`unknown source kind %q`, c.Source.Kind)
	}
	return nil
}

// Definitions converts the overlay section into renderer definitions.
func (c *Config) Definitions() ([]*overlay.Definition, error) {
	defs := make([]*overlay.Definition, 0, len(c.Overlays))
	for _, o := range c.Overlays {
		kind, err := overlay.ParseKind(o.Kind)
		if err != nil {
			return nil, err
		}
		fg, err := parseColor(o.Foreground)
		if err != nil {
			return nil, errors.WrapPrefix(err, o.Name, 0)
		}
		bg, err := parseColor(o.Background)
		if err != nil {
			return nil, errors.WrapPrefix(err, o.Name, 0)
		}
		defs = append(defs, &overlay.Definition{
			Name:    o.Name,
			Kind:    kind,
			Region:  o.Region.Rect(),
			Refresh: o.Refresh.Or(time.Second),
			Text:    o.Text,
			Style: overlay.Style{
				FontPath:    o.FontPath,
				FontSize:    o.FontSize,
				Foreground:  fg,
				Background:  bg,
				TwelveHour:  o.TwelveHour,
				ShowSeconds: o.ShowSeconds,
				DateLayout:  o.DateLayout,
			},
		})
	}
	return defs, nil
}

// DetectorParams returns the change detector tunables, zero values
// falling back to the package defaults.
func (c *Config) DetectorParams() detect.Params {
	return detect.Params{
		Threshold:         uint8(c.Detector.Threshold),
		MinRegionSize:     c.Detector.MinRegionSize,
		MergeDistance:     c.Detector.MergeDistance,
		FullUpdatePercent: c.Detector.FullUpdatePercent,
	}
}

func (c *Config) StressConfig() stress.Config {
	return stress.Config{
		MaxConsecutiveSlowOps: c.Stress.MaxConsecutiveSlowOps,
		KillThreshold:         c.Stress.KillThreshold,
		Overlay: stress.Thresholds{
			Warning:  time.Duration(c.Stress.OverlayWarning),
			Critical: time.Duration(c.Stress.OverlayCritical),
		},
		BaseImage: stress.Thresholds{
			Warning:  time.Duration(c.Stress.BaseImageWarning),
			Critical: time.Duration(c.Stress.BaseImageCritical),
		},
	}
}

// parseColor parses "#RRGGBB" and "#RRGGBBAA". Empty input is the zero
// color, which the renderer treats as "use its default".
func parseColor(s string) (color.RGBA, error) {
	if s == `` {
		return color.RGBA{}, nil
	}
	hex := strings.TrimPrefix(s, `#`)
	var c color.RGBA
	switch len(hex) {
	case 6:
		if _, err := fmt.Sscanf(hex, `%02x%02x%02x`, &c.R, &c.G, &c.B); err != nil {
			return color.RGBA{}, errors.Errorf(`bad color %q`, s)
		}
		c.A = 0xFF
	case 8:
		if _, err := fmt.Sscanf(hex, `%02x%02x%02x%02x`, &c.R, &c.G, &c.B, &c.A); err != nil {
			return color.RGBA{}, errors.Errorf(`bad color %q`, s)
		}
	default:
		return color.RGBA{}, errors.Errorf(`bad color %q`, s)
	}
	return c, nil
}
