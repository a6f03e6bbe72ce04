// Package stress tracks operation durations and converts them into a
// load level plus admission decisions. Expensive, invisible-until-committed
// work (base image recapture, change detection) yields to the cheap
// per-second overlay refresh the viewer actually expects.
package stress

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/jyellick/web2fb-sub000/internal/logx"
)

// Level is the stress ladder. It is recomputed from the counters after
// every recorded operation, never stored independently of them.
type Level int

const (
	LevelNormal Level = iota
	LevelMild
	LevelModerate
	LevelSevere
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return `normal`
	case LevelMild:
		return `mild`
	case LevelModerate:
		return `moderate`
	case LevelSevere:
		return `severe`
	}
	return `unknown`
}

// Category separates the two duration regimes the monitor watches.
type Category int

const (
	CategoryOverlay Category = iota
	CategoryBaseImage
)

func (c Category) String() string {
	if c == CategoryBaseImage {
		return `baseImage`
	}
	return `overlay`
}

// Thresholds classify one category's durations.
type Thresholds struct {
	Warning  time.Duration
	Critical time.Duration
}

type Config struct {
	MaxConsecutiveSlowOps int // slow ops before Moderate
	KillThreshold         int // critical events before Severe and a restart request
	HistorySize           int // retained per-category durations
	Overlay               Thresholds
	BaseImage             Thresholds
}

func DefaultConfig() Config {
	return Config{
		MaxConsecutiveSlowOps: 3,
		KillThreshold:         5,
		HistorySize:           30,
		Overlay:               Thresholds{Warning: 200 * time.Millisecond, Critical: time.Second},
		BaseImage:             Thresholds{Warning: 2 * time.Second, Critical: 10 * time.Second},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConsecutiveSlowOps <= 0 {
		c.MaxConsecutiveSlowOps = d.MaxConsecutiveSlowOps
	}
	if c.KillThreshold <= 0 {
		c.KillThreshold = d.KillThreshold
	}
	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
	if c.Overlay == (Thresholds{}) {
		c.Overlay = d.Overlay
	}
	if c.BaseImage == (Thresholds{}) {
		c.BaseImage = d.BaseImage
	}
	return c
}

// Monitor is the process-wide stress bookkeeper. All methods are safe for
// concurrent use.
type Monitor struct {
	cfg    Config
	logger *slog.Logger

	mu                  sync.Mutex
	level               Level
	consecutiveSlowOps  int
	criticalEvents      int
	history             map[Category][]time.Duration
	baseImageBusy       bool
	changeDetectionBusy bool
	recovery            bool
}

func NewMonitor(cfg Config, logger *slog.Logger) *Monitor {
	return &Monitor{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		history: map[Category][]time.Duration{},
	}
}

// RecordOperation feeds one finished operation into the counters. A
// failed operation classifies as critical regardless of duration. Fast
// successful operations gradually erase stress history.
func (m *Monitor) RecordOperation(cat Category, d time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hist := append(m.history[cat], d)
	if len(hist) > m.cfg.HistorySize {
		hist = hist[len(hist)-m.cfg.HistorySize:]
	}
	m.history[cat] = hist

	th := m.cfg.Overlay
	if cat == CategoryBaseImage {
		th = m.cfg.BaseImage
	}
	switch {
	case !success || d >= th.Critical:
		m.consecutiveSlowOps++
		m.criticalEvents++
	case d >= th.Warning:
		m.consecutiveSlowOps++
	case m.consecutiveSlowOps > 0:
		m.consecutiveSlowOps--
	}
	m.recomputeLevelLocked()
}

// recomputeLevelLocked keeps the level a pure function of the counters.
func (m *Monitor) recomputeLevelLocked() {
	level := LevelNormal
	switch {
	case m.criticalEvents >= m.cfg.KillThreshold:
		level = LevelSevere
	case m.consecutiveSlowOps >= m.cfg.MaxConsecutiveSlowOps:
		level = LevelModerate
	case m.consecutiveSlowOps > 0:
		level = LevelMild
	}
	if level != m.level {
		prev := m.level
		m.level = level
		args := []any{`from`, prev.String(), `to`, level.String(),
			`consecutiveSlowOps`, m.consecutiveSlowOps, `criticalEvents`, m.criticalEvents}
		logx.Warn(m.logger, `stress level transition`, append(args, sysAttrs()...)...)
	}
}

func (m *Monitor) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// ShouldAllowBaseImageRecapture gates the expensive recapture path: never
// in recovery, never at Moderate or above, and not at Mild while another
// recapture is already in flight.
func (m *Monitor) ShouldAllowBaseImageRecapture() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admitLocked(m.baseImageBusy)
}

// ShouldAllowChangeDetection applies the same shape to the detection
// category.
func (m *Monitor) ShouldAllowChangeDetection() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.admitLocked(m.changeDetectionBusy)
}

func (m *Monitor) admitLocked(busy bool) bool {
	if m.recovery {
		return false
	}
	switch m.level {
	case LevelModerate, LevelSevere:
		return false
	case LevelMild:
		return !busy
	}
	return true
}

// NeedsBrowserRestart is the Severe-level signal that the capture session
// should be torn down and recreated under supervision.
func (m *Monitor) NeedsBrowserRestart() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level == LevelSevere
}

// BeginBaseImage claims the base image busy flag. A false return means a
// recapture is already in flight and this request must be dropped, not
// queued.
func (m *Monitor) BeginBaseImage() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.baseImageBusy || m.recovery {
		return false
	}
	m.baseImageBusy = true
	return true
}

func (m *Monitor) EndBaseImage() {
	m.mu.Lock()
	m.baseImageBusy = false
	m.mu.Unlock()
}

func (m *Monitor) BeginChangeDetection() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.changeDetectionBusy || m.recovery {
		return false
	}
	m.changeDetectionBusy = true
	return true
}

func (m *Monitor) EndChangeDetection() {
	m.mu.Lock()
	m.changeDetectionBusy = false
	m.mu.Unlock()
}

// EnterRecoveryMode blocks all admission while the supervisor tears down
// and recreates the capture session.
func (m *Monitor) EnterRecoveryMode() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recovery {
		return
	}
	m.recovery = true
	logx.Warn(m.logger, `entering recovery mode`, sysAttrs()...)
}

// ExitRecoveryMode performs the full reset: every counter, flag and the
// history go back to zero.
func (m *Monitor) ExitRecoveryMode() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recovery = false
	m.level = LevelNormal
	m.consecutiveSlowOps = 0
	m.criticalEvents = 0
	m.baseImageBusy = false
	m.changeDetectionBusy = false
	m.history = map[Category][]time.Duration{}
	logx.Info(m.logger, `recovery mode exited, counters reset`)
}

func (m *Monitor) InRecovery() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recovery
}

// sysAttrs samples system memory and load for transition logs. Sampling
// failures just omit the attribute.
func sysAttrs() []any {
	var args []any
	if vm, err := mem.VirtualMemory(); err == nil {
		args = append(args, `memUsedPercent`, vm.UsedPercent)
	}
	if avg, err := load.Avg(); err == nil {
		args = append(args, `load1`, avg.Load1)
	}
	return args
}
