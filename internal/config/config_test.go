package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			TranslationPort: 8080,
			RecognitionPort: 8081,
			MaxBodyBytes:    10 << 20,
			ShutdownTimeout: 10 * time.Second,
		},
		Provider: ProviderConfig{
			Driver:      "gemini",
			Models:      []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-2.0-flash-lite"},
			Rounds:      3,
			Backoffs:    []time.Duration{2 * time.Second, 4 * time.Second},
			Temperature: 0.1,
			Timeout:     60 * time.Second,
		},
		Translation: TranslationConfig{
			SourceLanguage: "en",
			TargetLanguage: "zh",
		},
		Fallback: FallbackConfig{
			Timeout:     15 * time.Second,
			MaxFailures: 5,
			OpenTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Driver:    "memory",
			Namespace: "translation/v1",
			TTL:       30 * 24 * time.Hour,
		},
		Usage: UsageConfig{
			Driver:     "memory",
			Prefix:     "usage",
			DailyLimit: 4000,
			TTL:        48 * time.Hour,
		},
		SideTask: SideTaskConfig{
			Workers:   2,
			QueueSize: 64,
			Timeout:   5 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     3306,
			Database: "wordbroker",
			Username: "user",
		},
		SQLite: SQLiteConfig{
			Path: "wordbroker.db",
		},
	}
}

func TestConfigLoader_Load(t *testing.T) {
	tests := []struct {
		name              string
		configContent     string
		env               map[string]string
		useExplicitPath   bool
		want              func() *Config
		wantErrorContains []string
	}{
		{
			name:            "no config file uses defaults",
			useExplicitPath: false,
			want:            defaultConfig,
		},
		{
			name: "custom values",
			configContent: `provider:
  driver: openai
  base_url: http://localhost:11434/v1
  models:
    - gpt-4o-mini
  rounds: 2
  backoffs: [1s]
translation:
  target_language: ja
fallback:
  url: https://script.google.com/macros/s/abc/exec
cache:
  driver: redis
  namespace: translation/v2
usage:
  driver: sqlite
  daily_limit: 100
`,
			useExplicitPath: true,
			want: func() *Config {
				cfg := defaultConfig()
				cfg.Provider.Driver = "openai"
				cfg.Provider.BaseURL = "http://localhost:11434/v1"
				cfg.Provider.Models = []string{"gpt-4o-mini"}
				cfg.Provider.Rounds = 2
				cfg.Provider.Backoffs = []time.Duration{time.Second}
				cfg.Translation.TargetLanguage = "ja"
				cfg.Fallback.URL = "https://script.google.com/macros/s/abc/exec"
				cfg.Cache.Driver = "redis"
				cfg.Cache.Namespace = "translation/v2"
				cfg.Usage.Driver = "sqlite"
				cfg.Usage.DailyLimit = 100
				return cfg
			},
		},
		{
			name:            "credentials come from environment variables",
			configContent:   "server:\n  translation_port: 9090\n",
			useExplicitPath: true,
			env: map[string]string{
				"GEMINI_API_KEY":        "primary",
				"GEMINI_BACKUP_API_KEY": "backup",
				"REDIS_PASSWORD":        "redis-secret",
				"DB_PASSWORD":           "db-secret",
			},
			want: func() *Config {
				cfg := defaultConfig()
				cfg.Server.TranslationPort = 9090
				cfg.Provider.APIKey = "primary"
				cfg.Provider.BackupAPIKey = "backup"
				cfg.Redis.Password = "redis-secret"
				cfg.Database.Password = "db-secret"
				return cfg
			},
		},
		{
			name: "invalid YAML format",
			configContent: `provider:
  driver: gemini
  invalid yaml format here [[[
`,
			useExplicitPath: false,
			wantErrorContains: []string{
				"configuration file found but could not be read",
				"Please check the file format and permissions",
			},
		},
		{
			name: "invalid model identifier",
			configContent: `provider:
  models:
    - gemini-2.0-flash
    - "bad model!"
`,
			useExplicitPath: true,
			wantErrorContains: []string{
				"invalid configuration",
				"provider.models[1] must be a model identifier",
			},
		},
		{
			name: "unknown drivers",
			configContent: `provider:
  driver: anthropic
cache:
  driver: memcached
`,
			useExplicitPath: true,
			wantErrorContains: []string{
				"driver must be one of [gemini genai openai]",
				"driver must be one of [memory redis mysql sqlite]",
			},
		},
		{
			name: "zero rounds",
			configContent: `provider:
  rounds: 0
`,
			useExplicitPath: true,
			wantErrorContains: []string{
				"rounds must be 1 or greater",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, env := range []string{"GEMINI_API_KEY", "GEMINI_BACKUP_API_KEY", "REDIS_PASSWORD", "DB_PASSWORD"} {
				t.Setenv(env, tt.env[env])
			}
			tempDir := t.TempDir()

			var configPath string
			if tt.useExplicitPath {
				configPath = filepath.Join(tempDir, "config.yml")
				require.NoError(t, os.WriteFile(configPath, []byte(tt.configContent), 0644))
			} else {
				if tt.configContent != "" {
					require.NoError(t, os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(tt.configContent), 0644))
				}
				t.Chdir(tempDir)
			}

			loader, err := NewConfigLoader(configPath)
			require.NoError(t, err)
			got, err := loader.Load()

			if len(tt.wantErrorContains) > 0 {
				assert.Error(t, err)
				assert.Nil(t, got)
				for _, wantMsg := range tt.wantErrorContains {
					assert.Contains(t, err.Error(), wantMsg)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want(), got)
		})
	}
}

func TestConfig_Masked(t *testing.T) {
	cfg := defaultConfig()
	cfg.Provider.APIKey = "primary"
	cfg.Database.Password = "db-secret"

	got := cfg.Masked()
	assert.Equal(t, "********", got.Provider.APIKey)
	assert.Equal(t, "", got.Provider.BackupAPIKey)
	assert.Equal(t, "********", got.Database.Password)
	assert.Equal(t, "", got.Redis.Password)
	assert.Equal(t, "primary", cfg.Provider.APIKey)
}
