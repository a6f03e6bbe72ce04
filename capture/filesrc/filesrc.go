// Package filesrc reads captures from a file on disk. Meant for tests and
// demos where no browser is available; hide selectors are ignored.
package filesrc

import (
	"context"
	"os"

	"github.com/jyellick/web2fb-sub000/internal/errors"
)

type Source struct {
	Path string
}

func New(path string) *Source { return &Source{Path: path} }

func (s *Source) CaptureScreenshot(_ context.Context, _ []string) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errors.New(err)
	}
	return data, nil
}

func (s *Source) Close() error { return nil }
