package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

//go:generate mockgen -source=interface.go -destination=../mocks/inference/mock_client.go -package=mock_inference

// Client sends one prompt to one model with one credential and returns the text output.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Request is a single model invocation
type Request struct {
	Model  string
	APIKey string
	Prompt Prompt
}

// Prompt is the provider-neutral input of a generation call
type Prompt struct {
	Text        string
	Image       *Image
	Temperature float32
}

// Image is an inline image attached to a prompt
type Image struct {
	Data     []byte
	MIMEType string
}

// ProviderError is an error reported by the upstream model provider, either as an
// HTTP error status or as an error field in an otherwise successful response.
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	Status     string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Provider, e.Model, e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Provider, e.Model, e.StatusCode, e.Message)
}

var quotaMarkers = []string{
	"Quota",
	"Resource has been exhausted",
}

// IsQuotaError reports whether err carries a quota or rate-limit signature.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := err.Error()
	for _, marker := range quotaMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

const (
	DefaultTemperature = 0.1
)

type timeoutClient struct {
	next    Client
	timeout time.Duration
}

// WithTimeout bounds every Generate call of next. A non-positive timeout returns next unchanged.
func WithTimeout(next Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return next
	}
	return &timeoutClient{next: next, timeout: timeout}
}

func (c *timeoutClient) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.next.Generate(ctx, req)
}
