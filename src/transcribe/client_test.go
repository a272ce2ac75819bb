package transcribe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"region-ocr/src/apperr"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []Row
	}{
		{"rows", `{"rows":[{"line_no":1,"content":"Hello"},{"line_no":2,"content":"World"}]}`,
			[]Row{{1, "Hello"}, {2, "World"}}},
		{"text", `{"text":"Hello\nWorld"}`, []Row{{1, "Hello"}, {2, "World"}}},
		{"empty object", `{}`, []Row{}},
		{"rows beat text", `{"rows":[{"line_no":7,"content":"a"}],"text":"b"}`, []Row{{7, "a"}}},
		{"empty rows fall through", `{"rows":[],"result":"r"}`, []Row{{1, "r"}}},
		{"text beats result", `{"result":"r","text":"t"}`, []Row{{1, "t"}}},
		{"result beats ocrText", `{"ocrText":"o","result":"r"}`, []Row{{1, "r"}}},
		{"ocrText", `{"ocrText":"o"}`, []Row{{1, "o"}}},
		{"missing line numbers", `{"rows":[{"content":"a"},{"content":"b"}]}`, []Row{{1, "a"}, {2, "b"}}},
		{"backend order kept", `{"rows":[{"line_no":3,"content":"c"},{"line_no":1,"content":"a"}]}`,
			[]Row{{3, "c"}, {1, "a"}}},
		{"trailing blank lines", `{"text":"a\n\nb\n\n"}`, []Row{{1, "a"}, {2, ""}, {3, "b"}}},
		{"non-string text ignored", `{"text":42}`, []Row{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseResponse([]byte(tt.body))
			if err != nil {
				t.Fatalf("ParseResponse failed: %v", err)
			}
			if res.Rows == nil {
				t.Fatal("Rows must not be nil")
			}
			if len(res.Rows) != len(tt.want) {
				t.Fatalf("rows = %+v, want %+v", res.Rows, tt.want)
			}
			for i := range tt.want {
				if res.Rows[i] != tt.want[i] {
					t.Errorf("row %d = %+v, want %+v", i, res.Rows[i], tt.want[i])
				}
			}
		})
	}
}

func TestParseResponseProcessingTime(t *testing.T) {
	res, err := ParseResponse([]byte(`{"rows":[],"processing_time_ms":1234}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.ProcessingTime != 1234*time.Millisecond {
		t.Errorf("ProcessingTime = %v", res.ProcessingTime)
	}
	if !res.Empty() {
		t.Error("expected empty result")
	}
}

func TestParseResponseMalformed(t *testing.T) {
	if _, err := ParseResponse([]byte("<html>")); err == nil {
		t.Error("expected error for non-JSON body")
	}
}

func TestTranscribeSendsDataURL(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"rows":[{"line_no":1,"content":"Hello"}],"processing_time_ms":5}`))
	}))
	defer srv.Close()

	c := New(Config{Endpoint: srv.URL, APIKey: "secret"})
	res, err := c.Transcribe(context.Background(), []byte{0x89, 'P', 'N', 'G'}, ModeVideo, "")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if !strings.HasPrefix(got.ImageBase64, "data:image/png;base64,") {
		t.Errorf("imageBase64 = %q", got.ImageBase64)
	}
	if got.Mode != ModeVideo || got.Language != "eng" {
		t.Errorf("mode/language = %q/%q", got.Mode, got.Language)
	}
	if res.Text() != "Hello" || res.ProcessingTime != 5*time.Millisecond {
		t.Errorf("result = %+v", res)
	}
}

func TestTranscribeNon2xxNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"status":"ocr_failed"}`))
	}))
	defer srv.Close()

	_, err := New(Config{Endpoint: srv.URL}).Transcribe(context.Background(), []byte{1}, ModeWeb, "eng")
	if !apperr.IsCode(err, apperr.TranscriptionFailed) {
		t.Fatalf("err = %v, want TranscriptionFailed", err)
	}
	if apperr.StatusCode(err) != http.StatusBadGateway {
		t.Errorf("StatusCode = %d", apperr.StatusCode(err))
	}
	if !strings.Contains(err.Error(), "ocr_failed") {
		t.Errorf("error should carry backend status: %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("backend called %d times, want 1", n)
	}
}

func TestTranscribeContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(Config{Endpoint: srv.URL}).Transcribe(ctx, []byte{1}, ModeWeb, "")
	if !apperr.IsCode(err, apperr.TranscriptionFailed) || !Aborted(err) {
		t.Errorf("err = %v, want aborted TranscriptionFailed", err)
	}
}

func TestTranscribeValidation(t *testing.T) {
	if _, err := New(Config{}).Transcribe(context.Background(), []byte{1}, ModeRaw, ""); !apperr.IsCode(err, apperr.InvalidInput) {
		t.Errorf("missing endpoint err = %v", err)
	}
	if _, err := New(Config{Endpoint: "http://x"}).Transcribe(context.Background(), nil, ModeRaw, ""); !apperr.IsCode(err, apperr.InvalidInput) {
		t.Errorf("empty image err = %v", err)
	}
}

func TestUploadMultipart(t *testing.T) {
	pngHeader := []byte("\x89PNG\r\n\x1a\n0000")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "shot.png" || string(data) != string(pngHeader) {
			t.Errorf("file = %q (%d bytes)", hdr.Filename, len(data))
		}
		if ct := hdr.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("part Content-Type = %q", ct)
		}
		if r.FormValue("mode") != "image" || r.FormValue("language") != "deu" {
			t.Errorf("fields = %q %q", r.FormValue("mode"), r.FormValue("language"))
		}
		w.Write([]byte(`{"text":"Guten Tag"}`))
	}))
	defer srv.Close()

	c := New(Config{UploadEndpoint: srv.URL, Language: "deu"})
	res, err := c.Upload(context.Background(), "/tmp/shot.png", pngHeader, ModeImage)
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if len(res.Rows) != 1 || res.Rows[0].Content != "Guten Tag" {
		t.Errorf("rows = %+v", res.Rows)
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"video", "WEB", " image ", "raw"} {
		if _, err := ParseMode(s); err != nil {
			t.Errorf("ParseMode(%q): %v", s, err)
		}
	}
	if _, err := ParseMode("audio"); err == nil {
		t.Error("expected error")
	}
}
