//go:build !windows

package overlay

import "log/slog"

// NewDesktopSelector returns the desktop selector for this platform: a
// drag recorded from the global input hook.
func NewDesktopSelector(events EventSource, minSize float64, logger *slog.Logger) Selector {
	return NewHookSelector(events, minSize, logger)
}
