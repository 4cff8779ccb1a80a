// Package main is the entry point for the chat relay server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chatrelay/config"
	"chatrelay/internal/app"
	"chatrelay/internal/logging"
	"chatrelay/internal/version"
)

const rootLongDesc = `chatrelay forwards a conversation to an OpenAI-compatible
chat-completion service and returns the assistant's reply.

  chatrelay            Run the server (same as "chatrelay serve")
  chatrelay serve      Run the server
  chatrelay version    Print build information`

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "chatrelay",
		Short:         "Chat relay server",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			config.SetConfigFile(configFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a config file (default: ./config.yaml)")
	cmd.PersistentFlags().StringP("port", "p", "", "Port to listen on (overrides PORT)")
	if err := viper.BindPFlag("server.port", cmd.PersistentFlags().Lookup("port")); err != nil {
		panic(err)
	}

	cmd.AddCommand(newServeCmd(), newVersionCmd())
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	slog.SetDefault(logging.New(os.Stdout, cfg.Logging.Format, cfg.Logging.Level))
	slog.Info("starting chatrelay",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Start(":" + cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		// Start only returns early when the listener could not be opened.
		if shutdownErr := application.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("application shutdown error", "error", shutdownErr)
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("application shutdown error", "error", err)
		return err
	}
	return nil
}
