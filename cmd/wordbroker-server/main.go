package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/at-ishikawa/wordbroker/internal/bootstrap"
	"github.com/at-ishikawa/wordbroker/internal/config"
	"github.com/at-ishikawa/wordbroker/internal/requestid"
	"github.com/at-ishikawa/wordbroker/internal/server"
	"github.com/at-ishikawa/wordbroker/internal/wiring"
)

var configFile string

type Service string

func (s *Service) Set(val string) error {
	for _, service := range allServices {
		if val == string(service) {
			*s = service
			return nil
		}
	}
	return fmt.Errorf("invalid service: %s", val)
}

func (s Service) String() string {
	return string(s)
}

func (s *Service) Type() string {
	return "Service"
}

const (
	ServiceTranslation Service = server.ServiceTranslation
	ServiceRecognition Service = server.ServiceRecognition
	ServiceAll         Service = "all"
)

var (
	_           pflag.Value = (*Service)(nil)
	allServices             = []Service{ServiceTranslation, ServiceRecognition, ServiceAll}
)

func (s Service) includes(name string) bool {
	return s == ServiceAll || string(s) == name
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var debugMode bool
	service := ServiceAll
	rootCmd := &cobra.Command{
		Use:           "wordbroker-server",
		Short:         "Translation and text recognition HTTP brokers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(debugMode)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), service)
		},
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug mode")
	rootCmd.Flags().Var(&service, "service", fmt.Sprintf("Service to serve. Possible values are %v", allServices))
	return rootCmd
}

// setupLogger configures the default logger based on debug mode
func setupLogger(debugMode bool) {
	logLevel := slog.LevelInfo
	if debugMode {
		logLevel = slog.LevelDebug
	}

	slog.SetDefault(
		slog.New(requestid.NewHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}))),
	)
}

type namedServer struct {
	name string
	*http.Server
}

func newServers(cfg *config.Config, container *wiring.Container, service Service) []namedServer {
	var servers []namedServer
	if service.includes(server.ServiceTranslation) {
		servers = append(servers, namedServer{
			name:   server.ServiceTranslation,
			Server: server.NewHTTPServer(cfg.Server.TranslationPort, server.NewTranslationHandler(container.Translation, cfg.Server.MaxBodyBytes)),
		})
	}
	if service.includes(server.ServiceRecognition) {
		servers = append(servers, namedServer{
			name:   server.ServiceRecognition,
			Server: server.NewHTTPServer(cfg.Server.RecognitionPort, server.NewRecognitionHandler(container.Recognition, cfg.Server.MaxBodyBytes)),
		})
	}
	return servers
}

func run(ctx context.Context, service Service) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loadConfig() > %w", err)
	}

	app := bootstrap.New(cfg.Server.ShutdownTimeout)
	container, err := wiring.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("wiring.New() > %w", err)
	}
	// hooks run in reverse: servers stop, then side tasks drain and stores close
	app.AddShutdownHook("container", container.Close)

	servers := newServers(cfg, container, service)
	for _, srv := range servers {
		app.AddShutdownHook(srv.name+" server", srv.Shutdown)
	}

	return app.Run(ctx, func(ctx context.Context) error {
		errCh := make(chan error, len(servers))
		for _, srv := range servers {
			go func() {
				slog.Default().Info("starting server", "service", srv.name, "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- fmt.Errorf("%s server > %w", srv.name, err)
					return
				}
				errCh <- nil
			}()
		}
		for range servers {
			if err := <-errCh; err != nil {
				return err
			}
		}
		return nil
	})
}

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("config.NewConfigLoader() > %w", err)
	}
	return loader.Load()
}
