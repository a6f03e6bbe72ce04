// Package cdp captures screenshots from a headless Chrome session driven
// over the DevTools protocol. The session survives across captures; a
// Restart tears the browser down and brings a fresh one up, which is how
// the pipeline recovers from a wedged renderer.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/jyellick/web2fb-sub000/internal/errors"
	"github.com/jyellick/web2fb-sub000/internal/logx"
)

type Options struct {
	PageURL      string
	Width        int // viewport, defaults 800x480
	Height       int
	PollInterval time.Duration // change notification poll, 0 disables
	ExecPath     string        // optional browser binary override
}

type Session struct {
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc

	notifyOnce sync.Once
	notifyStop chan struct{}
}

// New starts the browser and navigates to the configured page.
func New(parent context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	if opts.Width <= 0 {
		opts.Width = 800
	}
	if opts.Height <= 0 {
		opts.Height = 480
	}
	s := &Session{opts: opts, logger: logger, notifyStop: make(chan struct{})}
	if err := s.start(parent); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) start(parent context.Context) error {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(s.opts.Width, s.opts.Height),
	)
	if s.opts.ExecPath != `` {
		allocOpts = append(allocOpts, chromedp.ExecPath(s.opts.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	ctx, cancelCtx := chromedp.NewContext(allocCtx)
	err := chromedp.Run(ctx,
		chromedp.EmulateViewport(int64(s.opts.Width), int64(s.opts.Height)),
		chromedp.Navigate(s.opts.PageURL),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
	)
	if err != nil {
		cancelCtx()
		cancelAlloc()
		return errors.New(err)
	}
	s.mu.Lock()
	s.ctx, s.cancelCtx, s.cancelAlloc = ctx, cancelCtx, cancelAlloc
	s.mu.Unlock()
	logx.Info(s.logger, `browser session started`, `url`, s.opts.PageURL)
	return nil
}

func (s *Session) sessionCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// CaptureScreenshot hides the given selectors in the page and captures a
// full-viewport PNG.
func (s *Session) CaptureScreenshot(ctx context.Context, hideSelectors []string) ([]byte, error) {
	sctx := s.sessionCtx()
	if sctx == nil {
		return nil, errors.New(`no browser session`)
	}
	var buf []byte
	actions := []chromedp.Action{}
	if len(hideSelectors) > 0 {
		js, err := hideScript(hideSelectors)
		if err != nil {
			return nil, err
		}
		actions = append(actions, chromedp.Evaluate(js, nil))
	}
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			Do(ctx)
		return err
	}))
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(sctx, actions...) }()
	select {
	case err := <-done:
		if err != nil {
			return nil, errors.New(err)
		}
		return buf, nil
	case <-ctx.Done():
		return nil, errors.New(ctx.Err())
	}
}

func hideScript(selectors []string) (string, error) {
	sels, err := json.Marshal(selectors)
	if err != nil {
		return ``, errors.New(err)
	}
	return fmt.Sprintf(
		`for (const sel of %s) { for (const el of document.querySelectorAll(sel)) { el.style.visibility = 'hidden'; } }`,
		sels), nil
}

// Restart tears the browser down and starts a fresh session.
func (s *Session) Restart(parent context.Context) error {
	s.teardown()
	return s.start(parent)
}

// NotifyChange polls a cheap content fingerprint of the page and invokes
// fn when it moves. The DOM snapshot itself never leaves the browser.
func (s *Session) NotifyChange(fn func()) {
	if s.opts.PollInterval <= 0 || fn == nil {
		return
	}
	s.notifyOnce.Do(func() {
		go s.pollContent(fn)
	})
}

func (s *Session) pollContent(fn func()) {
	var last uint64
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.notifyStop:
			return
		case <-ticker.C:
		}
		sctx := s.sessionCtx()
		if sctx == nil {
			continue
		}
		var html string
		err := chromedp.Run(sctx, chromedp.Evaluate(`document.documentElement.outerHTML`, &html))
		if logx.IsErr(s.logger, slog.LevelDebug, err, `op`, `contentPoll`) {
			continue
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(html))
		sum := h.Sum64()
		if last != 0 && sum != last {
			fn()
		}
		last = sum
	}
}

func (s *Session) teardown() {
	s.mu.Lock()
	cancelCtx, cancelAlloc := s.cancelCtx, s.cancelAlloc
	s.ctx, s.cancelCtx, s.cancelAlloc = nil, nil, nil
	s.mu.Unlock()
	if cancelCtx != nil {
		cancelCtx()
	}
	if cancelAlloc != nil {
		cancelAlloc()
	}
}

func (s *Session) Close() error {
	select {
	case <-s.notifyStop:
	default:
		close(s.notifyStop)
	}
	s.teardown()
	return nil
}
