package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sentinelgate/policyd/internal/adapter/inbound/obshttp"
	"github.com/sentinelgate/policyd/internal/adapter/inbound/policyserver"
	"github.com/sentinelgate/policyd/internal/config"
	"github.com/sentinelgate/policyd/internal/domain/ratelimit"
	"github.com/sentinelgate/policyd/internal/domain/rule"
	"github.com/sentinelgate/policyd/internal/service"
	"github.com/sentinelgate/policyd/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the policy server",
	Long: `Start policyd's TCP Connection Server and its health/metrics listener.

Examples:
  # Start with config file settings
  policyd serve

  # Start with a specific config file
  policyd --config /path/to/policyd.yaml serve`,
	RunE: runServe,
}

var devMode bool

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging and trace output; does not override a configured store driver)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("policyd stopped")
	return nil
}

// run wires every collaborator described in the decision pipeline and
// starts the two listeners, returning once ctx is cancelled and both have
// shut down (or either has failed).
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("error closing store", "error", err)
		}
	}()

	ruleRegistry, err := rule.NewRegistry(ctx, st.ruleStore)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	logger.Info("rules loaded", "count", len(ruleRegistry.List()))

	limiterRegistry, err := ratelimit.NewRegistry(ctx, st.limiterStore)
	if err != nil {
		return fmt.Errorf("failed to load limiters: %w", err)
	}
	logger.Info("limiters loaded", "count", len(limiterRegistry.List()))

	counterStore := st.newCounterStore(limiterRegistry)
	checker := ratelimit.NewChecker(limiterRegistry, counterStore, time.Now)

	reg, metrics := obshttp.NewMetricsRegistry()

	traceOut := io.Discard
	if cfg.DevMode || parseLogLevel(cfg.LogLevel) == slog.LevelDebug {
		traceOut = os.Stderr
	}
	shutdownTelemetry, err := telemetry.Setup(traceOut, "policyd", Version)
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("error shutting down telemetry", "error", err)
		}
	}()

	observer := service.NewFanoutObserver(logger)

	pipeline := service.NewDecisionPipeline(
		ruleRegistry,
		checker,
		st.inquiryStore,
		observer,
		logger,
		service.WithMetrics(metrics),
	)

	sweeper := service.NewSweeper(
		st.inquiryStore,
		checker,
		cfg.Retention.InquiryHours,
		logger,
		service.WithActiveCounterser(checker),
		service.WithSweepMetrics(metrics),
	)
	sweeper.StartCleanup(ctx)
	defer sweeper.Stop()

	policyAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	policySrv := policyserver.NewServer(policyAddr, pipeline, logger)

	health := obshttp.NewHealthChecker(ruleRegistry, policySrv, Version)
	obsSrv := obshttp.NewServer(cfg.Server.HTTPAddr, health, metrics, logger)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("policy server listening", "addr", policyAddr)
		errCh <- policySrv.Serve(ctx)
	}()
	go func() {
		errCh <- obsSrv.Serve(ctx, reg)
	}()

	var firstErr error
	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// parseLogLevel converts a string log level to slog.Level. Returns
// slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
