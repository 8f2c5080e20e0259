// Package wiring assembles the brokers and their stores from the configuration.
package wiring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/at-ishikawa/wordbroker/internal/cache"
	"github.com/at-ishikawa/wordbroker/internal/cascade"
	"github.com/at-ishikawa/wordbroker/internal/config"
	"github.com/at-ishikawa/wordbroker/internal/database"
	"github.com/at-ishikawa/wordbroker/internal/fallback"
	"github.com/at-ishikawa/wordbroker/internal/inference"
	"github.com/at-ishikawa/wordbroker/internal/inference/gemini"
	"github.com/at-ishikawa/wordbroker/internal/inference/genai"
	"github.com/at-ishikawa/wordbroker/internal/inference/openai"
	"github.com/at-ishikawa/wordbroker/internal/kv"
	"github.com/at-ishikawa/wordbroker/internal/recognition"
	"github.com/at-ishikawa/wordbroker/internal/sidetask"
	"github.com/at-ishikawa/wordbroker/internal/translation"
	"github.com/at-ishikawa/wordbroker/internal/usage"
)

// Container holds everything both services need. Close releases it.
type Container struct {
	Translation *translation.Broker
	Recognition *recognition.Broker
	SideTasks   *sidetask.Runner

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{}

	client, err := c.newInferenceClient(cfg.Provider)
	if err != nil {
		return nil, errors.Join(err, c.Close(ctx))
	}
	runner := cascade.New(inference.WithTimeout(client, cfg.Provider.Timeout), cascade.Config{
		Models:   cfg.Provider.Models,
		Rounds:   cfg.Provider.Rounds,
		Backoffs: cfg.Provider.Backoffs,
	})

	stores := make(map[string]kv.Store)
	cacheStore, err := c.openStore(ctx, cfg, cfg.Cache.Driver, stores)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open cache store > %w", err), c.Close(ctx))
	}
	usageStore, err := c.openStore(ctx, cfg, cfg.Usage.Driver, stores)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open usage store > %w", err), c.Close(ctx))
	}

	c.Translation = translation.NewBroker(
		translation.Config{
			APIKey:         cfg.Provider.APIKey,
			SourceLanguage: cfg.Translation.SourceLanguage,
			TargetLanguage: cfg.Translation.TargetLanguage,
			Temperature:    cfg.Provider.Temperature,
		},
		runner,
		cache.New(cacheStore, cfg.Cache.Namespace, cfg.Cache.TTL),
		fallback.NewGAS(fallback.Config{
			URL:            cfg.Fallback.URL,
			SourceLanguage: cfg.Translation.SourceLanguage,
			TargetLanguage: cfg.Translation.TargetLanguage,
			Timeout:        cfg.Fallback.Timeout,
			MaxFailures:    cfg.Fallback.MaxFailures,
			OpenTimeout:    cfg.Fallback.OpenTimeout,
		}),
	)

	c.SideTasks = sidetask.NewRunner(cfg.SideTask.Workers, cfg.SideTask.QueueSize, cfg.SideTask.Timeout)
	c.Recognition = recognition.NewBroker(
		recognition.Config{
			PrimaryAPIKey: cfg.Provider.APIKey,
			BackupAPIKey:  cfg.Provider.BackupAPIKey,
			DailyLimit:    cfg.Usage.DailyLimit,
			Temperature:   cfg.Provider.Temperature,
		},
		runner,
		usage.NewCounter(usageStore, cfg.Usage.Prefix, cfg.Usage.TTL),
		c.SideTasks,
	)

	if cfg.Provider.APIKey == "" {
		slog.Default().Warn("GEMINI_API_KEY is not set, provider calls will fail")
	}
	return c, nil
}

func (c *Container) newInferenceClient(cfg config.ProviderConfig) (inference.Client, error) {
	switch cfg.Driver {
	case "", "gemini":
		client := gemini.NewClient(cfg.BaseURL)
		c.closers = append(c.closers, client.Close)
		return client, nil
	case "genai":
		return genai.NewClient(cfg.BaseURL), nil
	case "openai":
		return openai.NewClient(cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider driver: %s", cfg.Driver)
	}
}

// openStore returns one store per driver so the cache and the counter share connections
func (c *Container) openStore(ctx context.Context, cfg *config.Config, driver string, stores map[string]kv.Store) (kv.Store, error) {
	if store, ok := stores[driver]; ok {
		return store, nil
	}

	var store kv.Store
	switch driver {
	case "", "memory":
		store = kv.NewMemoryStore()
	case "redis":
		store = kv.NewRedisStore(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	case "mysql", "sqlite":
		db, err := openDB(cfg, driver)
		if err != nil {
			return nil, err
		}
		sqlStore, err := kv.NewSQLStore(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("kv.NewSQLStore > %w", err)
		}
		if err := sqlStore.Migrate(ctx); err != nil {
			_ = sqlStore.Close()
			return nil, fmt.Errorf("sqlStore.Migrate > %w", err)
		}
		store = sqlStore
	default:
		return nil, fmt.Errorf("unknown store driver: %s", driver)
	}

	stores[driver] = store
	c.closers = append(c.closers, store.Close)
	slog.Default().Debug("opened store", "driver", driver)
	return store, nil
}

func openDB(cfg *config.Config, driver string) (*sqlx.DB, error) {
	if driver == "mysql" {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("database.Open > %w", err)
		}
		return db, nil
	}
	db, err := database.OpenSQLite(cfg.SQLite)
	if err != nil {
		return nil, fmt.Errorf("database.OpenSQLite > %w", err)
	}
	return db, nil
}

// Close drains the side tasks and then closes clients and stores
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.SideTasks != nil {
		if err := c.SideTasks.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("SideTasks.Close > %w", err))
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
