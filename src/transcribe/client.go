// Package transcribe sends enhanced images to the OCR backend and decodes
// its rows.
package transcribe

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"
	"time"

	"region-ocr/src/apperr"
)

// Mode is the capture mode reported to the backend.
type Mode string

const (
	ModeVideo Mode = "video"
	ModeWeb   Mode = "web"
	ModeImage Mode = "image"
	ModeRaw   Mode = "raw"
)

// ParseMode accepts a wire mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeVideo, ModeWeb, ModeImage, ModeRaw:
		return m, nil
	}
	return "", fmt.Errorf("transcribe: unknown mode %q", s)
}

const (
	DefaultLanguage = "eng"
	maxResponseSize = 4 << 20
)

type Config struct {
	Endpoint       string
	UploadEndpoint string
	Language       string
	APIKey         string
	HTTPClient     *http.Client
	Logger         *slog.Logger
}

// Client talks to one OCR backend. Each call is a single HTTP round trip;
// there is no queue and no retry.
type Client struct {
	cfg Config
	hc  *http.Client
	log *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{cfg: cfg, hc: hc, log: log}
}

type request struct {
	ImageBase64 string `json:"imageBase64"`
	Mode        Mode   `json:"mode"`
	Language    string `json:"language"`
}

// DataURL encodes png as a data URL.
func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// Transcribe posts png as a JSON data URL. language falls back to the
// client default when empty.
func (c *Client) Transcribe(ctx context.Context, png []byte, mode Mode, language string) (*Result, error) {
	if c.cfg.Endpoint == "" {
		return nil, apperr.New(apperr.InvalidInput, "OCR endpoint is not configured")
	}
	if len(png) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "no image to transcribe")
	}
	if language == "" {
		language = c.cfg.Language
	}

	body, err := json.Marshal(request{ImageBase64: DataURL(png), Mode: mode, Language: language})
	if err != nil {
		return nil, fmt.Errorf("transcribe: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.InvalidInput, "build OCR request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, len(png))
}

// Upload posts an image file as multipart form data to the upload
// endpoint.
func (c *Client) Upload(ctx context.Context, filename string, data []byte, mode Mode) (*Result, error) {
	if c.cfg.UploadEndpoint == "" {
		return nil, apperr.New(apperr.InvalidInput, "OCR upload endpoint is not configured")
	}
	if len(data) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "empty upload")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(filename)))
	h.Set("Content-Type", http.DetectContentType(data))
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("transcribe: create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("transcribe: write file part: %w", err)
	}
	if err := mw.WriteField("mode", string(mode)); err != nil {
		return nil, fmt.Errorf("transcribe: write mode: %w", err)
	}
	if err := mw.WriteField("language", c.cfg.Language); err != nil {
		return nil, fmt.Errorf("transcribe: write language: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("transcribe: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadEndpoint, &buf)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.InvalidInput, "build upload request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, len(data))
}

func (c *Client) do(req *http.Request, imageBytes int) (*Result, error) {
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, apperr.Wrap(ctxErr, apperr.TranscriptionFailed, "OCR request aborted")
		}
		return nil, apperr.Wrap(err, apperr.TranscriptionFailed, "OCR request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.TranscriptionFailed, "read OCR response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn("OCR backend rejected request", "status", resp.StatusCode, "url", req.URL.Redacted())
		return nil, apperr.Status(resp.StatusCode, backendMessage(body, resp.Status))
	}

	res, err := ParseResponse(body)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.TranscriptionFailed, "malformed OCR response")
	}
	if res.ProcessingTime == 0 {
		res.ProcessingTime = time.Since(start)
	}
	c.log.Debug("OCR response", "rows", len(res.Rows), "image_bytes", imageBytes, "elapsed", time.Since(start))
	return res, nil
}

// backendMessage extracts a short error message from a rejection body.
func backendMessage(body []byte, fallback string) string {
	var e struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		for _, s := range []string{e.Message, e.Error, e.Status} {
			if s != "" {
				return s
			}
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" && len(s) < 200 {
		return s
	}
	return fallback
}

// Aborted reports whether err came from a cancelled or expired context.
func Aborted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
