// Package cmd provides the CLI commands for policyd.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sentinelgate/policyd/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "policyd",
	Short: "policyd - SMTP policy decision service",
	Long: `policyd answers Postfix smtpd_access_policy inquiries in real time
against an ordered rule set and rate limiters.

Quick start:
  1. Create a config file: policyd.yaml
  2. Run: policyd serve

Configuration:
  Config is loaded from policyd.yaml in the current directory,
  $HOME/.policyd/, or /etc/policyd/.

  Environment variables can override config values with the POLICYD_ prefix.
  The listener host/port also accept the unprefixed POLICY_SERVER_HOST and
  POLICY_SERVER_PORT variables, matching what Postfix operators expect.

Commands:
  serve    Start the policy server
  reseat   Renumber the rule set to a dense 1..N sequence
  version  Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./policyd.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
