package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"siteRelay/internal/api"
	"siteRelay/internal/chain"
	"siteRelay/internal/config"
	"siteRelay/internal/lookup"
	"siteRelay/internal/storage"
	"siteRelay/internal/storage/postgres"
	"siteRelay/internal/subscriber"
)

func main() {
	root := &cobra.Command{
		Use:          "relay",
		Short:        "Contract event relay API",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the relay",
		RunE:  runRelay,
	}

	runCmd.Flags().String("ws-url", "", "node WebSocket endpoint URL")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	runCmd.Flags().String("contract", "", "registry contract address")
	runCmd.Flags().Int("port", 3000, "HTTP listen port")
	runCmd.Flags().StringSlice("origin", []string{"*"}, "allowed CORS origins (comma-separated)")
	runCmd.Flags().Duration("reconnect-delay", 5*time.Second, "delay before resubscribing after a failure")
	runCmd.Flags().Int("lookup-attempts", 30, "store queries per lookup before giving up")
	runCmd.Flags().Duration("lookup-interval", time.Second, "delay between lookup attempts")
	runCmd.Flags().String("journal", "", "optional JSONL notification journal path")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRelay(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.NodeWSURL == "" {
		return fmt.Errorf("ws url is required")
	}
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	contract, err := chain.ParseAddress(cfg.ContractAddress)
	if err != nil {
		return fmt.Errorf("contract address: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.NodeWSURL)
	if err != nil {
		return fmt.Errorf("dial node: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer store.Close()

	if err := store.CreateSchema(ctx); err != nil {
		return err
	}

	var journal *storage.Journal
	if cfg.JournalPath != "" {
		journal = storage.NewJournal(cfg.JournalPath)
	}

	sub, err := subscriber.New(subscriber.Config{
		Contract:     contract,
		RecoverDelay: cfg.ReconnectDelay,
	}, chainClient, store, journal, logger)
	if err != nil {
		return err
	}

	lookups := lookup.NewService(store, lookup.Config{
		MaxAttempts: cfg.LookupMaxAttempts,
		Interval:    cfg.LookupInterval,
	}, logger)

	apiServer := api.NewServer(ctx, api.Config{
		Port:           cfg.Port,
		AllowedOrigins: cfg.AllowedOrigins,
	}, lookups, store, sub, logger)

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("bind listener: %w", err)
	}

	logger.Info("relay start",
		zap.String("ws_url", cfg.NodeWSURL),
		zap.String("contract", contract.Hex()),
		zap.String("chain_id", chainID.String()),
		zap.Int("port", cfg.Port),
		zap.Int("lookup_attempts", cfg.LookupMaxAttempts),
		zap.Duration("lookup_interval", cfg.LookupInterval),
	)

	// the subscriber starts only once the listener is bound
	go func() {
		if err := sub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("subscriber stopped", zap.Error(err))
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- apiServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}

	logger.Info("relay stopped")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
