package config

import (
	"fmt"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/at-ishikawa/wordbroker/internal/inference"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Provider    ProviderConfig    `mapstructure:"provider" yaml:"provider"`
	Translation TranslationConfig `mapstructure:"translation" yaml:"translation"`
	Fallback    FallbackConfig    `mapstructure:"fallback" yaml:"fallback"`
	Cache       CacheConfig       `mapstructure:"cache" yaml:"cache"`
	Usage       UsageConfig       `mapstructure:"usage" yaml:"usage"`
	SideTask    SideTaskConfig    `mapstructure:"sidetask" yaml:"sidetask"`
	Redis       RedisConfig       `mapstructure:"redis" yaml:"redis"`
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	SQLite      SQLiteConfig      `mapstructure:"sqlite" yaml:"sqlite"`
}

type ServerConfig struct {
	TranslationPort int           `mapstructure:"translation_port" yaml:"translation_port" validate:"min=1,max=65535"`
	RecognitionPort int           `mapstructure:"recognition_port" yaml:"recognition_port" validate:"min=1,max=65535"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes" yaml:"max_body_bytes" validate:"min=1"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ProviderConfig describes the upstream models tried by the cascade.
type ProviderConfig struct {
	Driver       string          `mapstructure:"driver" yaml:"driver" validate:"oneof=gemini genai openai"`
	BaseURL      string          `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	APIKey       string          `mapstructure:"api_key" yaml:"api_key"`
	BackupAPIKey string          `mapstructure:"backup_api_key" yaml:"backup_api_key"`
	Models       []string        `mapstructure:"models" yaml:"models" validate:"min=1,dive,model"`
	Rounds       int             `mapstructure:"rounds" yaml:"rounds" validate:"min=1"`
	Backoffs     []time.Duration `mapstructure:"backoffs" yaml:"backoffs"`
	Temperature  float32         `mapstructure:"temperature" yaml:"temperature" validate:"min=0,max=2"`
	Timeout      time.Duration   `mapstructure:"timeout" yaml:"timeout"`
}

type TranslationConfig struct {
	SourceLanguage string `mapstructure:"source_language" yaml:"source_language" validate:"required"`
	TargetLanguage string `mapstructure:"target_language" yaml:"target_language" validate:"required"`
}

// FallbackConfig configures the Apps Script translation endpoint. An empty URL disables it.
type FallbackConfig struct {
	URL         string        `mapstructure:"url" yaml:"url" validate:"omitempty,url"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxFailures uint32        `mapstructure:"max_failures" yaml:"max_failures" validate:"min=1"`
	OpenTimeout time.Duration `mapstructure:"open_timeout" yaml:"open_timeout"`
}

type CacheConfig struct {
	Driver    string        `mapstructure:"driver" yaml:"driver" validate:"oneof=memory redis mysql sqlite"`
	Namespace string        `mapstructure:"namespace" yaml:"namespace" validate:"required"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type UsageConfig struct {
	Driver     string        `mapstructure:"driver" yaml:"driver" validate:"oneof=memory redis mysql sqlite"`
	Prefix     string        `mapstructure:"prefix" yaml:"prefix" validate:"required"`
	DailyLimit int64         `mapstructure:"daily_limit" yaml:"daily_limit" validate:"min=1"`
	TTL        time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type SideTaskConfig struct {
	Workers   int           `mapstructure:"workers" yaml:"workers" validate:"min=1"`
	QueueSize int           `mapstructure:"queue_size" yaml:"queue_size" validate:"min=1"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db" validate:"min=0"`
}

type DatabaseConfig struct {
	Host            string            `mapstructure:"host" yaml:"host"`
	Port            int               `mapstructure:"port" yaml:"port"`
	Database        string            `mapstructure:"database" yaml:"database"`
	Username        string            `mapstructure:"username" yaml:"username"`
	Password        string            `mapstructure:"password" yaml:"password"`
	TLS             bool              `mapstructure:"tls" yaml:"tls"`
	Params          map[string]string `mapstructure:"params" yaml:"params,omitempty"`
	MaxOpenConns    int               `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime int               `mapstructure:"conn_max_lifetime_seconds" yaml:"conn_max_lifetime_seconds"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path" validate:"required"`
}

type ConfigLoader struct {
	viper      *viper.Viper
	validator  *validator.Validate
	translator ut.Translator
}

func NewConfigLoader(configFile string) (*ConfigLoader, error) {
	validate, trans, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create new validator: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/wordbroker")
	}

	return &ConfigLoader{
		viper:      v,
		validator:  validate,
		translator: trans,
	}, nil
}

func (loader *ConfigLoader) Load() (*Config, error) {
	v := loader.viper

	v.SetDefault("server.translation_port", 8080)
	v.SetDefault("server.recognition_port", 8081)
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("provider.driver", "gemini")
	v.SetDefault("provider.models", []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-2.0-flash-lite"})
	v.SetDefault("provider.rounds", 3)
	v.SetDefault("provider.backoffs", []string{"2s", "4s"})
	v.SetDefault("provider.temperature", inference.DefaultTemperature)
	v.SetDefault("provider.timeout", 60*time.Second)
	v.SetDefault("translation.source_language", "en")
	v.SetDefault("translation.target_language", "zh")
	v.SetDefault("fallback.url", "")
	v.SetDefault("fallback.timeout", 15*time.Second)
	v.SetDefault("fallback.max_failures", 5)
	v.SetDefault("fallback.open_timeout", 30*time.Second)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.namespace", "translation/v1")
	v.SetDefault("cache.ttl", 30*24*time.Hour)
	v.SetDefault("usage.driver", "memory")
	v.SetDefault("usage.prefix", "usage")
	v.SetDefault("usage.daily_limit", 4000)
	v.SetDefault("usage.ttl", 48*time.Hour)
	v.SetDefault("sidetask.workers", 2)
	v.SetDefault("sidetask.queue_size", 64)
	v.SetDefault("sidetask.timeout", 5*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.database", "wordbroker")
	v.SetDefault("database.username", "user")
	v.SetDefault("sqlite.path", "wordbroker.db")

	// Bind credentials to environment variables only (not from config file)
	for key, env := range map[string]string{
		"provider.api_key":        "GEMINI_API_KEY",
		"provider.backup_api_key": "GEMINI_BACKUP_API_KEY",
		"redis.password":          "REDIS_PASSWORD",
		"database.password":       "DB_PASSWORD",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := loader.validator.Struct(cfg); err != nil {
		validationErrors := err.(validator.ValidationErrors)
		var errorMsgs []string
		for _, e := range validationErrors {
			errorMsgs = append(errorMsgs, e.Translate(loader.translator))
		}
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errorMsgs, ", "))
	}

	return &cfg, nil
}

// Masked returns a copy with credentials replaced so the config can be printed
func (cfg Config) Masked() Config {
	mask := func(secret string) string {
		if secret == "" {
			return ""
		}
		return "********"
	}
	cfg.Provider.APIKey = mask(cfg.Provider.APIKey)
	cfg.Provider.BackupAPIKey = mask(cfg.Provider.BackupAPIKey)
	cfg.Redis.Password = mask(cfg.Redis.Password)
	cfg.Database.Password = mask(cfg.Database.Password)
	return cfg
}
