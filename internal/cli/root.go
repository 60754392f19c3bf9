package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/mint-oracle/internal/control"
	"github.com/vietddude/mint-oracle/internal/core/config"
)

var (
	cfgPath  string
	envFiles []string
	isDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "oracle",
	Short: "Mint request oracle",
	Long: `Oracle watches a contract's MintRequest events, draws items from the
standard or premium weight table, and submits the mint transaction for each request.`,
	Run: runOracle,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "optional YAML config file; environment variables override it")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "env files to load before reading the environment")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig loads env files and the configuration, exiting on failure.
func loadConfig() *config.Config {
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := cfg.SlogLevel()
	if isDebug {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

func runOracle(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.NewOracle(ctx, *cfg)
	if err != nil {
		slog.Error("Failed to initialize Oracle", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start Oracle", "error", err)
		os.Exit(1)
	}

	slog.Info("Oracle started", "config", cfgPath)

	exitCode := 0
	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
	case <-app.Done():
		if err := app.Err(); err != nil {
			slog.Error("Oracle stopped", "error", err)
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Warn("A mint submission may still be pending")
		}
		os.Exit(1)
	}
	os.Exit(exitCode)
}
