package main

import (
	"context"
	"fmt"

	"github.com/at-ishikawa/wordbroker/internal/config"
	"github.com/at-ishikawa/wordbroker/internal/wiring"
)

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	return loader.Load()
}

// withContainer builds the brokers for a single command and releases them afterwards
func withContainer(ctx context.Context, fn func(*wiring.Container) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	container, err := wiring.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("wiring.New() > %w", err)
	}
	defer func() {
		if closeErr := container.Close(context.Background()); closeErr != nil && err == nil {
			err = fmt.Errorf("container.Close() > %w", closeErr)
		}
	}()
	return fn(container)
}
