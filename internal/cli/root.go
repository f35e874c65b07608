package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// RootConfig holds the persistent flags shared by every subcommand.
type RootConfig struct {
	ConfigPath string
	LogLevel   string
	Metrics    string
}

func NewRootCmd() *cobra.Command {
	rc := &RootConfig{}

	cmd := &cobra.Command{
		Use:           "riskcube",
		Short:         "Simulate NPV cubes, collateral balances and sensitivities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global / persistent flags
	cmd.PersistentFlags().StringVarP(&rc.ConfigPath, "config", "f", "", "Path to config file (defaults are used when empty)")
	cmd.PersistentFlags().StringVar(&rc.LogLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	cmd.PersistentFlags().StringVar(&rc.Metrics, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides config)")

	cmd.AddCommand(
		newGridCmd(),
		newRunCmd(rc),
		newSensiCmd(rc),
		newCubeCmd(),
		newConfigCmd(rc),
	)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "riskcube (%s)\n", Version)
		},
	})

	return cmd
}

// Execute runs the root command. An interrupt cancels a running cube fill
// between grid dates.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
