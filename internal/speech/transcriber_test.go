package speech

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kalambet/voicecrm/internal/provider"
)

type mockTranscriber struct {
	text  string
	err   error
	calls int
	last  openai.AudioRequest
}

func (m *mockTranscriber) CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	m.calls++
	m.last = req
	if m.err != nil {
		return openai.AudioResponse{}, m.err
	}
	return openai.AudioResponse{Text: m.text}, nil
}

func TestTranscribe(t *testing.T) {
	mock := &mockTranscriber{text: "met Rajesh Kumar"}
	tr := NewTranscriber(mock, "", "")

	got, err := tr.Transcribe(context.Background(), "/tmp/voice.webm")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "met Rajesh Kumar" {
		t.Errorf("Transcribe() = %q, want %q", got, "met Rajesh Kumar")
	}
	if mock.calls != 1 {
		t.Errorf("calls = %d, want 1", mock.calls)
	}
	if mock.last.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", mock.last.Model, DefaultModel)
	}
	if mock.last.Language != "en" {
		t.Errorf("Language = %q, want en", mock.last.Language)
	}
	if mock.last.Format != openai.AudioResponseFormatVerboseJSON {
		t.Errorf("Format = %q, want verbose_json", mock.last.Format)
	}
	if mock.last.FilePath != "/tmp/voice.webm" {
		t.Errorf("FilePath = %q", mock.last.FilePath)
	}
}

func TestTranscribe_CustomModel(t *testing.T) {
	mock := &mockTranscriber{text: "x"}
	tr := NewTranscriber(mock, "whisper-large-v3-turbo", "hi")

	if _, err := tr.Transcribe(context.Background(), "a.wav"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if mock.last.Model != "whisper-large-v3-turbo" || mock.last.Language != "hi" {
		t.Errorf("model = %q language = %q", mock.last.Model, mock.last.Language)
	}
}

func TestTranscribe_MissingKey(t *testing.T) {
	mock := &mockTranscriber{err: provider.ErrMissingAPIKey}
	tr := NewTranscriber(mock, "", "")

	_, err := tr.Transcribe(context.Background(), "a.webm")
	if !errors.Is(err, provider.ErrMissingAPIKey) {
		t.Fatalf("error = %v, want ErrMissingAPIKey", err)
	}
}
