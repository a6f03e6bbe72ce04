// Package logx provides nil-safe helpers around log/slog. All pipeline
// components hold an optional *slog.Logger; a nil logger disables output
// without any guard at the call site.
package logx

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

func Log(logger *slog.Logger, lvl slog.Level, skip int, msg string, args ...any) {
	if logger == nil || !logger.Enabled(context.Background(), lvl) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])
	r := slog.NewRecord(time.Now(), lvl, msg, pcs[0])
	r.Add(args...)
	_ = logger.Handler().Handle(context.Background(), r)
}

func Debug(logger *slog.Logger, msg string, args ...any) {
	Log(logger, slog.LevelDebug, 3, msg, args...)
}

func Info(logger *slog.Logger, msg string, args ...any) {
	Log(logger, slog.LevelInfo, 3, msg, args...)
}

func Warn(logger *slog.Logger, msg string, args ...any) {
	Log(logger, slog.LevelWarn, 3, msg, args...)
}

func Error(logger *slog.Logger, msg string, args ...any) {
	Log(logger, slog.LevelError, 3, msg, args...)
}

// IsErr logs err at lvl and reports whether err was non-nil. Joined errors
// are logged one line each.
func IsErr(logger *slog.Logger, lvl slog.Level, err error, args ...any) bool {
	if err == nil {
		return false
	}
	if errs, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range errs.Unwrap() {
			Log(logger, lvl, 3, e.Error(), args...)
		}
	} else {
		Log(logger, lvl, 3, err.Error(), args...)
	}
	return true
}
