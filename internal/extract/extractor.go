package extract

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const DefaultModel = "llama-3.3-70b-versatile"

// CreatedAtLayout is the timestamp format used when the model leaves
// interaction.created_at empty.
const CreatedAtLayout = "2006-01-02T15:04:05.000000Z"

// ChatCompleter is the chat-completions call of an OpenAI-compatible client.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Extractor asks a hosted LLM to pull customer and interaction fields out of
// a free-form transcript.
type Extractor struct {
	client ChatCompleter
	model  string
	now    func() time.Time
}

func NewExtractor(client ChatCompleter, model string) *Extractor {
	if model == "" {
		model = DefaultModel
	}
	return &Extractor{client: client, model: model, now: time.Now}
}

// Extract returns the structured record for transcript. The returned
// interaction.created_at is never empty; everything else is the model's.
func (e *Extractor) Extract(ctx context.Context, transcript string) (Result, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    e.model,
		Messages: BuildMessages(transcript),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extracting CRM data: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrMalformedReply)
	}

	result, err := decodeResult([]byte(resp.Choices[0].Message.Content))
	if err != nil {
		return nil, err
	}
	if err := result.fillCreatedAt(e.now().UTC().Format(CreatedAtLayout)); err != nil {
		return nil, err
	}
	return result, nil
}
