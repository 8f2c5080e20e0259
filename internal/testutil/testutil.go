// Package testutil provides shared test helpers for config files and fake upstream servers.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	fallbackURL string
	storeDriver string
	dailyLimit  int
}

// ConfigOption overrides a value of the generated config file
type ConfigOption func(*testConfig)

func WithFallbackURL(url string) ConfigOption {
	return func(cfg *testConfig) {
		cfg.fallbackURL = url
	}
}

// WithStoreDriver sets the driver of both the cache and the usage counter
func WithStoreDriver(driver string) ConfigOption {
	return func(cfg *testConfig) {
		cfg.storeDriver = driver
	}
}

func WithDailyLimit(limit int) ConfigOption {
	return func(cfg *testConfig) {
		cfg.dailyLimit = limit
	}
}

// SetupTestConfig writes a config file that sends provider calls to providerURL
// with a single round and no backoff. Returns the path to the generated config file.
func SetupTestConfig(t *testing.T, tmpDir, providerURL string, opts ...ConfigOption) string {
	t.Helper()

	cfg := testConfig{
		storeDriver: "memory",
		dailyLimit:  4000,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	configContent := fmt.Sprintf(`provider:
  driver: gemini
  base_url: %s
  models:
    - gemini-2.0-flash
  rounds: 1
  backoffs: []
fallback:
  url: %q
cache:
  driver: %s
usage:
  driver: %s
  daily_limit: %d
sqlite:
  path: %s
`,
		providerURL,
		cfg.fallbackURL,
		cfg.storeDriver,
		cfg.storeDriver,
		cfg.dailyLimit,
		filepath.Join(tmpDir, "wordbroker.db"),
	)

	cfgPath := filepath.Join(tmpDir, "config.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(configContent), 0644))
	return cfgPath
}

// GeminiReply is the response of the fake Gemini server for one call
type GeminiReply struct {
	StatusCode int
	Text       string
	Message    string
}

// NewGeminiServer starts a fake generateContent endpoint. reply receives the model and the API key.
func NewGeminiServer(t *testing.T, reply func(model, apiKey string) GeminiReply) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		model := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/models/"), ":generateContent")
		got := reply(model, r.Header.Get("x-goog-api-key"))

		w.Header().Set("Content-Type", "application/json")
		if got.StatusCode != 0 && got.StatusCode != http.StatusOK {
			w.WriteHeader(got.StatusCode)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{
					"code":    got.StatusCode,
					"message": got.Message,
					"status":  http.StatusText(got.StatusCode),
				},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"parts": []any{map[string]any{"text": got.Text}},
					},
				},
			},
		})
	}))
	t.Cleanup(server.Close)
	return server
}
