package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/voicecrm/internal/extract"
)

const defaultExt = ".webm"

var extPattern = regexp.MustCompile(`^\.[A-Za-z0-9]{1,8}$`)

type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

type Extractor interface {
	Extract(ctx context.Context, transcript string) (extract.Result, error)
}

// Result is what a processed recording yields. Nothing is persisted.
type Result struct {
	Transcript string         `json:"transcript"`
	Data       extract.Result `json:"data"`
}

// Metadata captures diagnostic information about one run.
type Metadata struct {
	TempFile             string
	Bytes                int64
	TranscribeDurationMs int64
	ExtractDurationMs    int64
}

// Voice spools an upload to disk, transcribes it and extracts CRM fields from
// the transcript.
type Voice struct {
	transcriber Transcriber
	extractor   Extractor
	tempDir     string
}

// New creates a Voice pipeline. An empty tempDir means os.TempDir().
func New(t Transcriber, e Extractor, tempDir string) *Voice {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Voice{transcriber: t, extractor: e, tempDir: tempDir}
}

// Process runs the pipeline on the audio read from r. filename is only used
// for its extension. The temporary file is removed on every return path.
func (v *Voice) Process(ctx context.Context, r io.Reader, filename string) (Result, Metadata, error) {
	var meta Metadata
	if err := os.MkdirAll(v.tempDir, 0o700); err != nil {
		return Result{}, meta, fmt.Errorf("creating temp directory: %w", err)
	}

	path := filepath.Join(v.tempDir, "voice-"+uuid.New().String()+audioExt(filename))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return Result{}, meta, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(path)
	meta.TempFile = path

	n, err := io.Copy(f, r)
	meta.Bytes = n
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Result{}, meta, fmt.Errorf("saving upload: %w", err)
	}

	start := time.Now()
	transcript, err := v.transcriber.Transcribe(ctx, path)
	meta.TranscribeDurationMs = time.Since(start).Milliseconds()
	if err != nil {
		return Result{}, meta, err
	}

	start = time.Now()
	data, err := v.extractor.Extract(ctx, transcript)
	meta.ExtractDurationMs = time.Since(start).Milliseconds()
	if err != nil {
		return Result{}, meta, err
	}

	return Result{Transcript: transcript, Data: data}, meta, nil
}

func audioExt(filename string) string {
	ext := filepath.Ext(filename)
	if !extPattern.MatchString(ext) {
		return defaultExt
	}
	return ext
}
