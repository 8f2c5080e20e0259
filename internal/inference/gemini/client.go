package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/at-ishikawa/wordbroker/internal/inference"
	"resty.dev/v3"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	providerName   = "gemini"
)

// Client calls the Gemini generateContent REST endpoint.
// The credential is sent per request, so one Client serves both the primary and the backup key.
type Client struct {
	httpClient *resty.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(baseURL, "/"))
	client.SetHeader("Content-Type", "application/json")
	client.SetResponseBodyUnlimitedReads(true)

	return &Client{
		httpClient: client,
	}
}

func (client *Client) Close() error {
	return client.httpClient.Close()
}

type GenerateContentRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inline_data,omitempty"`
}

type InlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type GenerationConfig struct {
	Temperature float32 `json:"temperature"`
}

type GenerateContentResponse struct {
	Candidates []Candidate `json:"candidates,omitempty"`
	Error      *APIError   `json:"error,omitempty"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Text joins the text parts of the first candidate
func (r *GenerateContentResponse) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	var builder strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		builder.WriteString(part.Text)
	}
	return strings.TrimSpace(builder.String())
}

func newRequestBody(prompt inference.Prompt) GenerateContentRequest {
	parts := []Part{{Text: prompt.Text}}
	if prompt.Image != nil {
		parts = append(parts, Part{
			InlineData: &InlineData{
				MIMEType: prompt.Image.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(prompt.Image.Data),
			},
		})
	}
	return GenerateContentRequest{
		Contents: []Content{
			{Role: "user", Parts: parts},
		},
		GenerationConfig: &GenerationConfig{
			Temperature: prompt.Temperature,
		},
	}
}

// Generate implements the inference.Client interface
func (client *Client) Generate(ctx context.Context, req inference.Request) (string, error) {
	requestBody := newRequestBody(req.Prompt)

	response, err := client.httpClient.R().
		SetContext(ctx).
		SetHeader("x-goog-api-key", req.APIKey).
		SetPathParam("model", req.Model).
		SetBody(requestBody).
		SetResult(&GenerateContentResponse{}).
		SetError(&GenerateContentResponse{}).
		Post("/models/{model}:generateContent")
	if err != nil {
		return "", fmt.Errorf("httpClient.Post > %w", err)
	}
	if response.IsError() {
		providerErr := &inference.ProviderError{
			Provider:   providerName,
			Model:      req.Model,
			StatusCode: response.StatusCode(),
			Message:    response.String(),
		}
		if body, ok := response.Error().(*GenerateContentResponse); ok && body != nil && body.Error != nil {
			providerErr.Status = body.Error.Status
			providerErr.Message = body.Error.Message
		}
		return "", providerErr
	}

	responseBody, ok := response.Result().(*GenerateContentResponse)
	if !ok || responseBody == nil {
		return "", fmt.Errorf("unexpected response body: %s", response.String())
	}
	if responseBody.Error != nil {
		code := responseBody.Error.Code
		if code == 0 {
			code = http.StatusInternalServerError
		}
		return "", &inference.ProviderError{
			Provider:   providerName,
			Model:      req.Model,
			StatusCode: code,
			Status:     responseBody.Error.Status,
			Message:    responseBody.Error.Message,
		}
	}

	text := responseBody.Text()
	slog.Default().Debug("gemini response content",
		"model", req.Model,
		"candidates", len(responseBody.Candidates),
		"length", len(text),
	)
	if text == "" {
		return "", fmt.Errorf("empty response content from %s: %s", req.Model, response.String())
	}
	return text, nil
}
