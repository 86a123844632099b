package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sgrlab/deepresearch"
	"github.com/sgrlab/deepresearch/config"
	"github.com/sgrlab/deepresearch/logging"
	"github.com/sgrlab/deepresearch/server"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "deepresearch",
		Short:         "Autonomous deep research agent server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var configPath string
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the OpenAI-compatible research API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if addr != "" {
				cfg.Server.Address = addr
			}

			logger := logging.NewLogger(&logging.LoggerConfig{
				Level:  logging.ParseLevel(cfg.Logging.Level),
				Format: cfg.Logging.Format,
				Output: os.Stdout,
			})

			svc, err := deepresearch.NewServiceFromConfig(cfg, logger)
			if err != nil {
				return fmt.Errorf("build service: %w", err)
			}
			srv := server.New(svc, logger)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(cfg.Server.Address) }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logger.Info("Shutting down", "signal", sig.String())
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("HTTP shutdown incomplete", "error", err)
			}
			svc.Shutdown(10 * time.Second)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: config.yaml in ./ or ./config)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address override")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}
