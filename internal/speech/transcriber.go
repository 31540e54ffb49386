package speech

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel    = "whisper-large-v3"
	DefaultLanguage = "en"
)

// AudioTranscriber is the speech-to-text call of an OpenAI-compatible client.
type AudioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Transcriber turns an audio file on disk into text.
type Transcriber struct {
	client   AudioTranscriber
	model    string
	language string
}

// NewTranscriber creates a Transcriber. Empty model or language fall back to
// the defaults.
func NewTranscriber(client AudioTranscriber, model, language string) *Transcriber {
	if model == "" {
		model = DefaultModel
	}
	if language == "" {
		language = DefaultLanguage
	}
	return &Transcriber{client: client, model: model, language: language}
}

// Transcribe sends the file at path in a single request and returns the
// transcript text.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: path,
		Language: t.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return "", fmt.Errorf("transcribing %s: %w", path, err)
	}
	return resp.Text, nil
}
