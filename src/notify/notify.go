// Package notify shows short user-facing notices, rate limited so a burst
// of failures produces one message instead of a flood.
package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"region-ocr/src/apperr"
)

const (
	DefaultInterval = 2 * time.Second
	maxMessageLen   = 200
)

type Level int

const (
	LevelInfo Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "info"
}

// Poster displays one notice. Implementations must not block for long.
type Poster interface {
	Post(level Level, title, message string) error
}

// PosterFunc adapts a function to Poster.
type PosterFunc func(level Level, title, message string) error

func (f PosterFunc) Post(level Level, title, message string) error { return f(level, title, message) }

// LogPoster writes notices to a logger; it is the fallback where no
// desktop notification service exists.
type LogPoster struct{ Logger *slog.Logger }

func (p LogPoster) Post(level Level, title, message string) error {
	l := p.Logger
	if l == nil {
		l = slog.Default()
	}
	if level == LevelError {
		l.Error(title, "message", message)
	} else {
		l.Info(title, "message", message)
	}
	return nil
}

type Notifier struct {
	mu         sync.Mutex
	limiter    *rate.Limiter
	poster     Poster
	log        *slog.Logger
	suppressed int
}

// New returns a Notifier allowing one notice per interval with the given
// burst. interval <= 0 uses DefaultInterval.
func New(poster Poster, interval time.Duration, burst int, logger *slog.Logger) *Notifier {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if burst < 1 {
		burst = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	if poster == nil {
		poster = LogPoster{Logger: logger}
	}
	return &Notifier{
		limiter: rate.NewLimiter(rate.Every(interval), burst),
		poster:  poster,
		log:     logger,
	}
}

// Notify posts a notice unless the rate limit is exhausted. It reports
// whether the notice was shown.
func (n *Notifier) Notify(level Level, title, message string) bool {
	message = truncate(message)

	n.mu.Lock()
	if !n.limiter.Allow() {
		n.suppressed++
		n.mu.Unlock()
		n.log.Debug("notification suppressed", "level", level, "title", title, "message", message)
		return false
	}
	if n.suppressed > 0 {
		message += fmt.Sprintf(" (%d more suppressed)", n.suppressed)
		n.suppressed = 0
	}
	n.mu.Unlock()

	if err := n.poster.Post(level, title, message); err != nil {
		n.log.Warn("notification failed", "error", err)
		return false
	}
	return true
}

// Error reports a run failure. Informational outcomes (nothing detected,
// selection cancelled) are posted at info level.
func (n *Notifier) Error(err error) bool {
	if err == nil {
		return false
	}
	if apperr.Informational(err) {
		return n.Notify(LevelInfo, "Region OCR", message(err))
	}
	return n.Notify(LevelError, "Region OCR failed", message(err))
}

// Suppressed returns the number of notices dropped since the last one
// shown.
func (n *Notifier) Suppressed() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.suppressed
}

func message(err error) string {
	switch apperr.CodeOf(err) {
	case apperr.EmptyResult:
		return "No text detected"
	case apperr.NoVideoFound:
		return "No video under the selection"
	case apperr.CaptureDenied:
		return "Screen capture was denied"
	case apperr.Busy:
		return "A capture is already in progress"
	}
	return err.Error()
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	cut := maxMessageLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
