// Package capture defines the contract the pipeline consumes from the
// base image source. The pipeline depends only on these capabilities, not
// on whether the image comes from a live browser, a remote rendering
// service or a file.
package capture

import "context"

// Source produces encoded screenshots of the source content. Elements
// matching hideSelectors are hidden in the capture so the base pixels
// under each widget stay stable.
type Source interface {
	CaptureScreenshot(ctx context.Context, hideSelectors []string) ([]byte, error)
	Close() error
}

// Restarter is implemented by sources whose session can be torn down and
// recreated during recovery.
type Restarter interface {
	Restart(ctx context.Context) error
}

// ChangeNotifier is implemented by sources that can push a change
// notification instead of relying on periodic recapture alone. fn must be
// cheap: it only flags that a recapture is worth attempting.
type ChangeNotifier interface {
	NotifyChange(fn func())
}
