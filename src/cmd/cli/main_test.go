package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"region-ocr/src/capture/capturetest"
	"region-ocr/src/enhance"
)

func writePNG(t *testing.T) string {
	t.Helper()
	data, err := enhance.Encode(capturetest.Gradient(40, 20))
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "shot.png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// backend answers every request with two rows and counts the calls per
// path.
func backend(t *testing.T) (*httptest.Server, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	var jsonCalls, uploadCalls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ocr":
			jsonCalls.Add(1)
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !strings.HasPrefix(body["imageBase64"], "data:image/png;base64,") {
				http.Error(w, `{"message":"bad body"}`, http.StatusBadRequest)
				return
			}
		case "/upload":
			uploadCalls.Add(1)
			if _, _, err := r.FormFile("file"); err != nil {
				http.Error(w, `{"message":"no file"}`, http.StatusBadRequest)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"rows":[{"line_no":1,"content":"hello"},{"line_no":2,"content":"world"}],"processing_time_ms":12}`)
	}))
	t.Cleanup(ts.Close)
	t.Setenv("OCR_ENDPOINT", ts.URL+"/ocr")
	t.Setenv("OCR_UPLOAD_ENDPOINT", ts.URL+"/upload")
	t.Setenv("HISTORY_DB", filepath.Join(t.TempDir(), "history.db"))
	t.Setenv("ENABLE_FILE_LOGGING", "false")
	return ts, &jsonCalls, &uploadCalls
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTranscribeFileAndHistory(t *testing.T) {
	_, jsonCalls, _ := backend(t)
	png := writePNG(t)

	out, err := execute(t, "transcribe", "--file", png, "--format", "numbered")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if out != "1. hello\n2. world\n" {
		t.Errorf("output = %q", out)
	}
	if jsonCalls.Load() != 1 {
		t.Errorf("backend calls = %d", jsonCalls.Load())
	}

	out, err = execute(t, "history", "list", "--format", "json")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	var entry struct {
		Source string `json:"source"`
		Rows   []struct {
			Content string `json:"content"`
		} `json:"rows"`
	}
	if err := json.NewDecoder(strings.NewReader(out)).Decode(&entry); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if entry.Source != "image" || len(entry.Rows) != 2 || entry.Rows[0].Content != "hello" {
		t.Errorf("entry = %+v", entry)
	}

	out, err = execute(t, "history", "clear")
	if err != nil || out != "Cleared 1 entries\n" {
		t.Errorf("history clear = %q, %v", out, err)
	}
}

func TestTranscribeNoHistory(t *testing.T) {
	backend(t)
	if _, err := execute(t, "transcribe", "--file", writePNG(t), "--no-history"); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	out, err := execute(t, "history", "list")
	if err != nil || out != "" {
		t.Errorf("history list = %q, %v", out, err)
	}
}

func TestUploadCommand(t *testing.T) {
	_, jsonCalls, uploadCalls := backend(t)
	out, err := execute(t, "upload", "--file", writePNG(t))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if out != "hello\nworld\n" {
		t.Errorf("output = %q", out)
	}
	if uploadCalls.Load() != 1 || jsonCalls.Load() != 0 {
		t.Errorf("calls: upload=%d json=%d", uploadCalls.Load(), jsonCalls.Load())
	}
}

func TestFlagValidation(t *testing.T) {
	backend(t)
	tests := []struct {
		name string
		args []string
	}{
		{"bad format", []string{"transcribe", "--file", "x.png", "--format", "xml"}},
		{"bad kind", []string{"transcribe", "--kind", "audio"}},
		{"bad mode", []string{"transcribe", "--file", "x.png", "--mode", "sepia"}},
		{"upload needs file", []string{"upload"}},
		{"missing file", []string{"transcribe", "--file", filepath.Join(t.TempDir(), "none.png")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Errorf("%v should fail", tt.args)
			}
		})
	}
}

func TestReadInput(t *testing.T) {
	name, data, err := readInput("-", strings.NewReader("abc"))
	if err != nil || name != "stdin.png" || string(data) != "abc" {
		t.Errorf("stdin = %q %q %v", name, data, err)
	}
	if _, _, err := readInput("-", strings.NewReader("")); err == nil {
		t.Error("empty input should fail")
	}
	if _, _, err := readInput("-", bytes.NewReader(make([]byte, maxFileSize+1))); err == nil {
		t.Error("oversized input should fail")
	}
}
