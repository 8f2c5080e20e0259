// Package openai implements inference.Client for OpenAI-compatible chat completion endpoints.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/at-ishikawa/wordbroker/internal/inference"
	goopenai "github.com/sashabaranov/go-openai"
)

const providerName = "openai"

type Client struct {
	baseURL string

	mu      sync.Mutex
	clients map[string]*goopenai.Client
}

// NewClient creates a client. An empty baseURL uses the OpenAI API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		clients: make(map[string]*goopenai.Client),
	}
}

func (client *Client) chatClient(apiKey string) *goopenai.Client {
	client.mu.Lock()
	defer client.mu.Unlock()

	if c, ok := client.clients[apiKey]; ok {
		return c
	}
	config := goopenai.DefaultConfig(apiKey)
	if client.baseURL != "" {
		config.BaseURL = strings.TrimSuffix(client.baseURL, "/")
	}
	c := goopenai.NewClientWithConfig(config)
	client.clients[apiKey] = c
	return c
}

func newMessages(prompt inference.Prompt) []goopenai.ChatCompletionMessage {
	if prompt.Image == nil {
		return []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt.Text},
		}
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", prompt.Image.MIMEType, base64.StdEncoding.EncodeToString(prompt.Image.Data))
	return []goopenai.ChatCompletionMessage{
		{
			Role: goopenai.ChatMessageRoleUser,
			MultiContent: []goopenai.ChatMessagePart{
				{Type: goopenai.ChatMessagePartTypeText, Text: prompt.Text},
				{
					Type: goopenai.ChatMessagePartTypeImageURL,
					ImageURL: &goopenai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: goopenai.ImageURLDetailAuto,
					},
				},
			},
		},
	}
}

// Generate implements the inference.Client interface
func (client *Client) Generate(ctx context.Context, req inference.Request) (string, error) {
	resp, err := client.chatClient(req.APIKey).CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    newMessages(req.Prompt),
		Temperature: req.Prompt.Temperature,
	})
	if err != nil {
		return "", toProviderError(req.Model, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from %s", req.Model)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty response content from %s", req.Model)
	}
	return content, nil
}

func toProviderError(model string, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &inference.ProviderError{
			Provider:   providerName,
			Model:      model,
			StatusCode: apiErr.HTTPStatusCode,
			Status:     apiErr.Type,
			Message:    apiErr.Message,
		}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &inference.ProviderError{
			Provider:   providerName,
			Model:      model,
			StatusCode: reqErr.HTTPStatusCode,
			Status:     reqErr.HTTPStatus,
			Message:    strings.TrimSpace(string(reqErr.Body)),
		}
	}
	return fmt.Errorf("CreateChatCompletion > %w", err)
}
