// Package genai implements inference.Client on top of the official Google Gen AI SDK.
package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/at-ishikawa/wordbroker/internal/inference"
	sdk "google.golang.org/genai"
)

const providerName = "genai"

// Client keeps one SDK client per API key since the SDK binds the credential at construction.
type Client struct {
	baseURL string

	mu      sync.Mutex
	clients map[string]*sdk.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		clients: make(map[string]*sdk.Client),
	}
}

func (client *Client) sdkClient(ctx context.Context, apiKey string) (*sdk.Client, error) {
	client.mu.Lock()
	defer client.mu.Unlock()

	if c, ok := client.clients[apiKey]; ok {
		return c, nil
	}
	c, err := sdk.NewClient(ctx, &sdk.ClientConfig{
		APIKey:  apiKey,
		Backend: sdk.BackendGeminiAPI,
		HTTPOptions: sdk.HTTPOptions{
			BaseURL: client.baseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient > %w", err)
	}
	client.clients[apiKey] = c
	return c, nil
}

// Generate implements the inference.Client interface
func (client *Client) Generate(ctx context.Context, req inference.Request) (string, error) {
	c, err := client.sdkClient(ctx, req.APIKey)
	if err != nil {
		return "", err
	}

	parts := []*sdk.Part{sdk.NewPartFromText(req.Prompt.Text)}
	if req.Prompt.Image != nil {
		parts = append(parts, sdk.NewPartFromBytes(req.Prompt.Image.Data, req.Prompt.Image.MIMEType))
	}
	contents := []*sdk.Content{sdk.NewContentFromParts(parts, sdk.RoleUser)}

	response, err := c.Models.GenerateContent(ctx, req.Model, contents, &sdk.GenerateContentConfig{
		Temperature: sdk.Ptr(req.Prompt.Temperature),
	})
	if err != nil {
		return "", toProviderError(req.Model, err)
	}

	text := strings.TrimSpace(response.Text())
	if text == "" {
		return "", fmt.Errorf("empty response content from %s", req.Model)
	}
	return text, nil
}

func toProviderError(model string, err error) error {
	var apiErr sdk.APIError
	if errors.As(err, &apiErr) {
		return &inference.ProviderError{
			Provider:   providerName,
			Model:      model,
			StatusCode: apiErr.Code,
			Status:     apiErr.Status,
			Message:    apiErr.Message,
		}
	}
	return fmt.Errorf("Models.GenerateContent > %w", err)
}
