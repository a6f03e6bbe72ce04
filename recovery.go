package web2fb

import (
	"context"
	"log/slog"
	"time"

	"github.com/jyellick/web2fb-sub000/capture"
	"github.com/jyellick/web2fb-sub000/internal/logx"
)

// superviseRecovery watches for the Severe-level restart signal. The
// protocol is deliberately heavy: cancel every periodic task first so
// nothing fires against the session being torn down, restart the capture
// session, wait a fixed cooldown, then reset the monitor completely and
// bring the tasks back.
func (p *Pipeline) superviseRecovery(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !p.monitor.NeedsBrowserRestart() || p.monitor.InRecovery() {
			continue
		}
		p.runRecovery(ctx)
	}
}

func (p *Pipeline) runRecovery(ctx context.Context) {
	p.monitor.EnterRecoveryMode()
	p.stopTasks()
	p.queue.Clear()

	if r, ok := p.source.(capture.Restarter); ok {
		err := r.Restart(ctx)
		logx.IsErr(p.logger, slog.LevelError, err, `op`, `sessionRestart`)
	} else {
		logx.Warn(p.logger, `capture source does not support restart`)
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(p.opts.RecoveryCooldown):
	}

	p.monitor.ExitRecoveryMode()
	p.startTasks(ctx)
	logx.Info(p.logger, `recovery complete, tasks restarted`)
}
