// Package httpsrc captures through a remote rendering service: an HTTP
// endpoint that renders a page and answers with an encoded image.
package httpsrc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/jyellick/web2fb-sub000/internal/errors"
)

type Options struct {
	Endpoint string // render service URL
	PageURL  string // page to render
	Width    int
	Height   int
	Timeout  time.Duration // per-request, default 30s
}

type Source struct {
	opts   Options
	client *http.Client
}

func New(opts Options) *Source {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Source{opts: opts, client: &http.Client{Timeout: timeout}}
}

type renderRequest struct {
	URL           string   `json:"url"`
	Width         int      `json:"width,omitempty"`
	Height        int      `json:"height,omitempty"`
	HideSelectors []string `json:"hideSelectors,omitempty"`
}

func (s *Source) CaptureScreenshot(ctx context.Context, hideSelectors []string) ([]byte, error) {
	body, err := json.Marshal(renderRequest{
		URL:           s.opts.PageURL,
		Width:         s.opts.Width,
		Height:        s.opts.Height,
		HideSelectors: hideSelectors,
	})
	if err != nil {
		return nil, errors.New(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(err)
	}
	req.Header.Set(`Content-Type`, `application/json`)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.New(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf(`render service: %s`, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.New(err)
	}
	return data, nil
}

func (s *Source) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
