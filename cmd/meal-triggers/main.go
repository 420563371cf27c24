package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcp-meal-triggers/internal/config"
	"mcp-meal-triggers/internal/logging"
	"mcp-meal-triggers/internal/server"
	"mcp-meal-triggers/internal/storage"
	"mcp-meal-triggers/internal/triggers"
)

var (
	configPath string
	dbPath     string
	logLevel   string

	transport string
	host      string
	address   string
	port      int
)

var rootCmd = &cobra.Command{
	Use:           "meal-triggers",
	Short:         "Find meal attributes linked to feeling unwell and run elimination experiments",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the meal log and trigger tools over HTTP",
	RunE:  runServe,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Print the trigger analysis for a meal database as JSON",
	RunE:  runAnalyze,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "meal-triggers version %s\n", server.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "Database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")

	serveCmd.Flags().StringVar(&transport, "transport", "http", "Transport mode: http")
	serveCmd.Flags().StringVar(&host, "host", "0.0.0.0", "Host address")
	serveCmd.Flags().StringVar(&address, "address", "", "Address (alias for host)")
	serveCmd.Flags().IntVar(&port, "port", 8011, "Port for HTTP transport")

	rootCmd.AddCommand(serveCmd, analyzeCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig applies explicitly set flags on top of file and environment config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("db-path") {
		cfg.Storage.DBPath = dbPath
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Lookup("transport") != nil {
		if flags.Changed("transport") {
			cfg.Server.Transport = transport
		}
		if flags.Changed("host") {
			cfg.Server.Host = host
		}
		// Use address if provided, otherwise use host
		if flags.Changed("address") && address != "" {
			cfg.Server.Host = address
		}
		if flags.Changed("port") {
			cfg.Server.Port = port
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	srv, err := server.NewTriggerServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		logger.Error("server error", zap.Error(runErr))
	}

	logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	return runErr
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	engineCfg, err := cfg.Triggers()
	if err != nil {
		return err
	}

	stor, err := storage.NewSQLiteStorage(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer stor.Close()

	ctx := cmd.Context()
	meals, err := stor.AllMeals(ctx)
	if err != nil {
		return err
	}
	dismissed, err := stor.ListDismissed(ctx)
	if err != nil {
		return err
	}

	analysis := triggers.NewEngine(engineCfg).Analyze(meals, dismissed)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(analysis)
}
