// Package singleinstance lets a second invocation hand a capture run to
// the resident app over a loopback TCP port.
package singleinstance

import (
	"context"
	"os"
	"strconv"

	"region-ocr/src/sink"
)

const (
	defaultPortStart = 49500
	defaultPortEnd   = 49550

	PortStartEnvVar = "REGION_OCR_PORT_START"
	PortEndEnvVar   = "REGION_OCR_PORT_END"
)

// Server owns the resident endpoint.
type Server interface {
	// Start binds the first port of the configured range. It fails when
	// the port is taken, which usually means another resident owns it.
	Start(ctx context.Context) error
	Port() int
	// Next returns the next delegated run request.
	Next(ctx context.Context) (Conn, error)
	Close() error
}

// Conn is one delegated request awaiting its answer.
type Conn interface {
	Request() Request
	RespondSuccess(text string) error
	RespondError(msg string) error
	Close() error
}

// Request asks the resident for one capture run rendered in Format.
type Request struct {
	Format sink.Format
}

// Client delegates a run to a resident, if one answers.
type Client interface {
	// TryRun returns delegated=false with a nil error when no resident
	// is listening.
	TryRun(ctx context.Context, format sink.Format) (delegated bool, text string, err error)
}

// portRange reads the inclusive range from the environment, clamped to
// [1024, 65535].
func portRange() (int, int) {
	start, end := defaultPortStart, defaultPortEnd
	if n, err := strconv.Atoi(os.Getenv(PortStartEnvVar)); err == nil {
		start = n
	}
	if n, err := strconv.Atoi(os.Getenv(PortEndEnvVar)); err == nil {
		end = n
	}
	start = max(start, 1024)
	end = min(end, 65535)
	if end < start {
		start, end = end, start
	}
	return start, end
}
