package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/voicecrm/internal/extract"
)

type mockTranscriber struct {
	text     string
	err      error
	seenPath string
	seenData string
}

func (m *mockTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	m.seenPath = path
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	m.seenData = string(b)
	return m.text, m.err
}

type mockExtractor struct {
	result extract.Result
	err    error
	seen   string
}

func (m *mockExtractor) Extract(ctx context.Context, transcript string) (extract.Result, error) {
	m.seen = transcript
	return m.result, m.err
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("temp dir not empty: %d entries, first %q", len(entries), entries[0].Name())
	}
}

func TestProcess_Success(t *testing.T) {
	dir := t.TempDir()
	tr := &mockTranscriber{text: "Talking to Neha Gupta."}
	ex := &mockExtractor{result: extract.Result{
		"customer":    map[string]any{"full_name": "Neha Gupta"},
		"interaction": map[string]any{"created_at": "2025-12-01T00:00:00.000000Z"},
	}}
	v := New(tr, ex, dir)

	res, meta, err := v.Process(context.Background(), strings.NewReader("audio-bytes"), "clip.mp3")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Transcript != "Talking to Neha Gupta." {
		t.Errorf("Transcript = %q", res.Transcript)
	}
	if !res.Data.HasName() {
		t.Error("data.customer.full_name missing")
	}
	if ex.seen != "Talking to Neha Gupta." {
		t.Errorf("extractor saw %q", ex.seen)
	}
	if tr.seenData != "audio-bytes" {
		t.Errorf("transcriber read %q", tr.seenData)
	}
	if filepath.Dir(tr.seenPath) != dir {
		t.Errorf("temp file %q not in %q", tr.seenPath, dir)
	}
	if filepath.Ext(tr.seenPath) != ".mp3" {
		t.Errorf("temp file ext = %q, want .mp3", filepath.Ext(tr.seenPath))
	}
	if meta.Bytes != int64(len("audio-bytes")) {
		t.Errorf("meta.Bytes = %d", meta.Bytes)
	}
	assertEmptyDir(t, dir)
}

func TestProcess_TranscribeFailureRemovesFile(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("stt down")
	ex := &mockExtractor{}
	v := New(&mockTranscriber{err: boom}, ex, dir)

	_, _, err := v.Process(context.Background(), strings.NewReader("x"), "a.webm")
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if ex.seen != "" {
		t.Error("extractor called after transcription failure")
	}
	assertEmptyDir(t, dir)
}

func TestProcess_ExtractFailureRemovesFile(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("llm down")
	v := New(&mockTranscriber{text: "t"}, &mockExtractor{err: boom}, dir)

	_, _, err := v.Process(context.Background(), strings.NewReader("x"), "a.webm")
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	assertEmptyDir(t, dir)
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestProcess_ReadFailureRemovesFile(t *testing.T) {
	dir := t.TempDir()
	boom := errors.New("client went away")
	tr := &mockTranscriber{}
	v := New(tr, &mockExtractor{}, dir)

	_, _, err := v.Process(context.Background(), failingReader{boom}, "a.webm")
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	if tr.seenPath != "" {
		t.Error("transcriber called after upload failure")
	}
	assertEmptyDir(t, dir)
}

func TestProcess_UniqueNames(t *testing.T) {
	dir := t.TempDir()
	tr := &mockTranscriber{text: "t"}
	v := New(tr, &mockExtractor{}, dir)

	seen := map[string]bool{}
	for range 5 {
		if _, _, err := v.Process(context.Background(), strings.NewReader("x"), "a.webm"); err != nil {
			t.Fatalf("Process: %v", err)
		}
		if seen[tr.seenPath] {
			t.Fatalf("temp path %q reused", tr.seenPath)
		}
		seen[tr.seenPath] = true
	}
}

func TestAudioExt(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"recording.webm", ".webm"},
		{"clip.wav", ".wav"},
		{"blob", ".webm"},
		{"", ".webm"},
		{"../../etc/passwd", ".webm"},
		{"weird.w/e", ".webm"},
	}
	for _, tt := range tests {
		if got := audioExt(tt.in); got != tt.want {
			t.Errorf("audioExt(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
