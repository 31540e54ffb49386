package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is Groq's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.groq.com/openai/v1"

// ErrMissingAPIKey is returned by every call when no credential is configured.
var ErrMissingAPIKey = errors.New("GROQ_API_KEY is not set in environment variables")

type Config struct {
	APIKey  string
	BaseURL string
	// HTTPClient is optional. The default client has no timeout; callers bound
	// outbound calls through the request context.
	HTTPClient *http.Client
}

// Client talks to an OpenAI-compatible speech and chat API. The credential is
// checked on each call rather than at construction so the server can start
// without one.
type Client struct {
	apiKey string
	client *openai.Client
}

func NewClient(cfg Config) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	} else {
		oc.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	return &Client{
		apiKey: cfg.APIKey,
		client: openai.NewClientWithConfig(oc),
	}
}

// HasAPIKey reports whether a credential was configured.
func (c *Client) HasAPIKey() bool {
	return c.apiKey != ""
}

func (c *Client) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if c.apiKey == "" {
		return openai.ChatCompletionResponse{}, ErrMissingAPIKey
	}
	return c.client.CreateChatCompletion(ctx, req)
}

func (c *Client) CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	if c.apiKey == "" {
		return openai.AudioResponse{}, ErrMissingAPIKey
	}
	return c.client.CreateTranscription(ctx, req)
}
