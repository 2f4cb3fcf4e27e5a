package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelgate/policyd/internal/config"
	"github.com/sentinelgate/policyd/internal/domain/rule"
)

var reseatCmd = &cobra.Command{
	Use:   "reseat",
	Short: "Renumber the rule set to a dense 1..N sequence",
	Long: `Reseat loads the configured rule store, repairs any gap left in the
rule_id sequence by a prior run, and writes the renumbered set back.

This is the same repair NewRegistry performs automatically on startup;
the subcommand exists so an operator can run it without starting the
server, e.g. after editing the store directly.`,
	RunE: runReseat,
}

func init() {
	rootCmd.AddCommand(reseatCmd)
}

func runReseat(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("error closing store", "error", err)
		}
	}()

	registry, err := rule.NewRegistry(ctx, st.ruleStore)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	before := len(registry.List())
	if err := registry.Reseat(ctx); err != nil {
		return fmt.Errorf("failed to reseat rules: %w", err)
	}

	fmt.Printf("reseated %d rules to a dense 1..%d sequence\n", before, before)
	return nil
}
