// Package fallback calls the Google Apps Script translation endpoint used after every model failed.
package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxFailures = 5
	DefaultOpenTimeout = 30 * time.Second

	statusSuccess = "success"
)

var ErrNotConfigured = errors.New("fallback endpoint is not configured")

type Config struct {
	URL            string
	SourceLanguage string
	TargetLanguage string
	Timeout        time.Duration
	// MaxFailures is the number of consecutive failures that opens the breaker
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before a trial request
	OpenTimeout time.Duration
}

// Response is the JSON body written by the Apps Script
type Response struct {
	Status         string `json:"status"`
	TranslatedText string `json:"translatedText"`
	Message        string `json:"message,omitempty"`
}

type GAS struct {
	url            string
	sourceLanguage string
	targetLanguage string
	httpClient     *resty.Client
	breaker        *gobreaker.CircuitBreaker
}

func NewGAS(cfg Config) *GAS {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = DefaultMaxFailures
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = DefaultOpenTimeout
	}

	// Apps Script answers with a 302 to script.googleusercontent.com
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	return &GAS{
		url:            cfg.URL,
		sourceLanguage: cfg.SourceLanguage,
		targetLanguage: cfg.TargetLanguage,
		httpClient:     client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "gas",
			Timeout: openTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			IsSuccessful: isSuccessful,
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Default().Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

// errAbandoned marks calls whose caller went away. The breaker does not count them;
// timeouts of the endpoint itself still count.
var errAbandoned = errors.New("request abandoned by the caller")

func isSuccessful(err error) bool {
	return err == nil || errors.Is(err, errAbandoned)
}

// Translate returns the translated text or an error describing why the endpoint could not provide one
func (g *GAS) Translate(ctx context.Context, word string) (string, error) {
	if g.url == "" {
		return "", ErrNotConfigured
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("GAS fallback skipped > %w", err)
	}
	result, err := g.breaker.Execute(func() (interface{}, error) {
		text, err := g.translate(ctx, word)
		if err != nil && ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", errAbandoned, err)
		}
		return text, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("GAS fallback unavailable > %w", err)
		}
		return "", err
	}
	return result.(string), nil
}

func (g *GAS) translate(ctx context.Context, word string) (string, error) {
	res, err := g.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"text":   word,
			"source": g.sourceLanguage,
			"target": g.targetLanguage,
		}).
		Get(g.url)
	if err != nil {
		return "", fmt.Errorf("GAS client.R.Get > %w", err)
	}
	if res.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("GAS status code: %d, body: %s", res.StatusCode(), string(res.Body()))
	}

	var body Response
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return "", fmt.Errorf("GAS json.Unmarshal > %w, body: %s", err, string(res.Body()))
	}
	if body.Status != statusSuccess {
		return "", fmt.Errorf("GAS status %q: %s", body.Status, body.Message)
	}
	text := strings.TrimSpace(body.TranslatedText)
	if text == "" {
		return "", errors.New("GAS returned an empty translation")
	}
	return text, nil
}
