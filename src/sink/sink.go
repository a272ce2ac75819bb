// Package sink delivers transcription results to the user.
package sink

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"region-ocr/src/clipboard"
	"region-ocr/src/transcribe"
)

// Output is a finished transcription plus what produced it.
type Output struct {
	ID             string            `json:"id,omitempty"`
	Time           time.Time         `json:"time"`
	Source         string            `json:"source"`
	Mode           string            `json:"mode"`
	Rows           []transcribe.Row  `json:"rows"`
	ProcessingTime time.Duration     `json:"-"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// Text joins the row contents with newlines.
func (o *Output) Text() string {
	r := transcribe.Result{Rows: o.Rows}
	return r.Text()
}

// Target receives the outcome of a run.
type Target interface {
	OnSuccess(out *Output) error
	OnFailure(err error) error
}

// Format selects how an Output is rendered.
type Format string

const (
	FormatText     Format = "text"
	FormatNumbered Format = "numbered"
	FormatJSON     Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatNumbered, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("sink: unknown format %q", s)
}

// Render writes out in format f. The numbered form is one
// "<line_no>. <content>" per line.
func Render(w io.Writer, out *Output, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*Output
			ProcessingTimeMs int64 `json:"processing_time_ms"`
		}{out, out.ProcessingTime.Milliseconds()})
	case FormatNumbered:
		for _, r := range out.Rows {
			if _, err := fmt.Fprintf(w, "%d. %s\n", r.LineNumber, r.Content); err != nil {
				return err
			}
		}
		return nil
	default:
		text := out.Text()
		if text == "" {
			return nil
		}
		_, err := fmt.Fprintln(w, text)
		return err
	}
}

// ClipboardTarget copies the recognised text to the system clipboard.
type ClipboardTarget struct{}

func (ClipboardTarget) OnSuccess(out *Output) error {
	text := out.Text()
	if text == "" {
		return nil
	}
	return clipboard.Write(text)
}

func (ClipboardTarget) OnFailure(error) error { return nil }

// WriterTarget prints results, stdout by default.
type WriterTarget struct {
	Writer io.Writer
	Format Format
}

func (t WriterTarget) OnSuccess(out *Output) error {
	w := t.Writer
	if w == nil {
		w = os.Stdout
	}
	return Render(w, out, t.Format)
}

func (t WriterTarget) OnFailure(error) error { return nil }

// Multi fans out to every target. All targets are called; the first
// error is returned.
type Multi []Target

func (m Multi) OnSuccess(out *Output) error {
	var first error
	for _, t := range m {
		if err := t.OnSuccess(out); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) OnFailure(err error) error {
	var first error
	for _, t := range m {
		if e := t.OnFailure(err); e != nil && first == nil {
			first = e
		}
	}
	return first
}
