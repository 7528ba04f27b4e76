package embedding

import (
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrMissingAPIKey is returned when an OpenAI client is requested without a key.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY not set")

// Client wraps the OpenAI client shared by embedding and answer synthesis.
type Client struct {
	client *openai.Client
}

// NewClient creates an OpenAI client. baseURL is optional and targets
// OpenAI-compatible servers when set. The SDK's automatic retries are disabled;
// callers see the first failure.
func NewClient(apiKey, baseURL string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., synthesis).
func (c *Client) Client() *openai.Client {
	return c.client
}
