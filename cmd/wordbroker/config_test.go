package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/at-ishikawa/wordbroker/internal/testutil"
)

func TestConfigCommand(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "primary-secret")
	path := testutil.SetupTestConfig(t, t.TempDir(), "http://127.0.0.1:1")

	got, err := execute(t, "--config", path, "config")
	require.NoError(t, err)
	assert.NotContains(t, got, "primary-secret")

	var printed struct {
		Provider struct {
			APIKey       string   `yaml:"api_key"`
			BackupAPIKey string   `yaml:"backup_api_key"`
			Models       []string `yaml:"models"`
		} `yaml:"provider"`
		Usage struct {
			DailyLimit int64 `yaml:"daily_limit"`
		} `yaml:"usage"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(got), &printed))
	assert.Equal(t, "********", printed.Provider.APIKey)
	assert.Empty(t, printed.Provider.BackupAPIKey)
	assert.Equal(t, []string{"gemini-2.0-flash"}, printed.Provider.Models)
	assert.Equal(t, int64(4000), printed.Usage.DailyLimit)
}
