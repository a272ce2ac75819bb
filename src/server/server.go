// Package server is a small reference OCR backend speaking the same wire
// format the transcription client expects.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"region-ocr/src/enhance"
	"region-ocr/src/transcribe"
)

const (
	maxUploadMB   = 10
	maxUploadSize = maxUploadMB << 20

	StatusSuccess      = "success"
	StatusFileTooLarge = "file_too_large"
	StatusInvalid      = "invalid_format"
	StatusOCRFailed    = "ocr_failed"
	StatusError        = "error"
)

// Response is the body of every OCR endpoint.
type Response struct {
	Rows             []transcribe.Row `json:"rows"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	Status           string           `json:"status"`
	Message          string           `json:"message,omitempty"`
	RequestID        string           `json:"request_id,omitempty"`
}

type base64Request struct {
	ImageBase64   string `json:"imageBase64"`
	Mode          string `json:"mode"`
	Language      string `json:"language"`
	MaxFileSizeMB int    `json:"maxFileSizeMB"`
}

type Server struct {
	engine   Engine
	language string
	log      *slog.Logger
	router   chi.Router
}

// New builds the HTTP handler around engine. language is used when a
// request names none.
func New(engine Engine, language string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if language == "" {
		language = transcribe.DefaultLanguage
	}
	s := &Server{engine: engine, language: language, log: logger}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Route("/api/ocr", func(r chi.Router) {
		r.Post("/base64", s.handleBase64)
		r.Post("/enhanced", s.handleBase64)
		r.Post("/file", s.handleFile)
	})
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("OCR server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type ctxKey struct{}

// RequestIDFrom returns the request ID assigned by the server, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBase64(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req base64Request
	if err := json.NewDecoder(io.LimitReader(r.Body, 2*maxUploadSize)).Decode(&req); err != nil {
		s.fail(w, r, start, StatusInvalid, "malformed request body")
		return
	}
	data, err := decodeImageBase64(req.ImageBase64)
	if err != nil {
		s.fail(w, r, start, StatusInvalid, err.Error())
		return
	}
	limit := maxUploadMB
	if req.MaxFileSizeMB > 0 {
		limit = req.MaxFileSizeMB
	}
	if len(data) > limit<<20 {
		s.fail(w, r, start, StatusFileTooLarge, "image exceeds size limit")
		return
	}

	img, err := enhance.Decode(data)
	if err != nil {
		s.fail(w, r, start, StatusError, "Error: "+err.Error())
		return
	}
	png, err := enhance.Encode(Preprocess(img))
	if err != nil {
		s.fail(w, r, start, StatusError, "Error: "+err.Error())
		return
	}
	s.log.Debug("OCR request", "id", RequestIDFrom(r.Context()), "mode", req.Mode, "bytes", len(data))
	s.recognize(w, r, start, png, req.Language)
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, start, StatusFileTooLarge, "file exceeds size limit")
			return
		}
		s.fail(w, r, start, StatusError, "Error: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, start, StatusError, "Error: missing file part")
		return
	}
	defer file.Close()

	if header.Size > maxUploadSize {
		s.fail(w, r, start, StatusFileTooLarge, "file exceeds size limit")
		return
	}
	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		s.fail(w, r, start, StatusInvalid, "file is not an image")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		s.fail(w, r, start, StatusError, "Error: "+err.Error())
		return
	}
	s.recognize(w, r, start, data, r.FormValue("language"))
}

func (s *Server) recognize(w http.ResponseWriter, r *http.Request, start time.Time, img []byte, language string) {
	if language == "" {
		language = s.language
	}
	text, err := s.engine.Recognize(r.Context(), img, language)
	if err != nil {
		s.log.Warn("OCR engine failed", "id", RequestIDFrom(r.Context()), "error", err)
		s.fail(w, r, start, StatusOCRFailed, "OCR Failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Rows:             transcribe.SplitRows(text),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Status:           StatusSuccess,
		RequestID:        RequestIDFrom(r.Context()),
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, start time.Time, status, msg string) {
	writeJSON(w, http.StatusBadRequest, Response{
		Rows:             []transcribe.Row{},
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Status:           status,
		Message:          msg,
		RequestID:        RequestIDFrom(r.Context()),
	})
}

// decodeImageBase64 accepts a data URL or bare base64; anything up to the
// first comma is treated as the data URL header.
func decodeImageBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("imageBase64 is required")
	}
	if i := strings.IndexByte(s, ','); i >= 0 {
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("imageBase64 is not valid base64")
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
