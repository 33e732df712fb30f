// enginectl is an operator CLI for the engine. Requests go over the duplex
// channel when it comes up and over REST otherwise.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rickgao/engine-bridge/internal/bridge"
	"github.com/rickgao/engine-bridge/internal/config"
	"github.com/rickgao/engine-bridge/internal/version"
)

var (
	cfgFile string
	timeout time.Duration
	verbose bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "enginectl",
		Short:         "Inspect and operate the engine",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment only)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall command timeout")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log bridge activity to stderr")

	root.AddCommand(
		newGraphCmd(),
		newNodeCmd(),
		newEdgeCmd(),
		newOrchestrateCmd(),
		newApprovalsCmd(),
		newApproveCmd(),
		newRejectCmd(),
		newValidateCmd(),
		newHealthCmd(),
		newDiagnosticsCmd(),
	)
	return root
}

// withClient starts a bridge, runs fn and stops the bridge.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *bridge.Client) error) error {
	cfg, err := config.LoadAndValidate(cfgFile)
	if err != nil {
		return err
	}

	level := slog.LevelError
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client, err := bridge.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		client.Stop(stopCtx)
	}()

	return fn(ctx, client)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOK(format string, args ...any) {
	color.New(color.FgGreen).Printf("✓ "+format+"\n", args...)
}

func printField(label string, value any) {
	color.New(color.FgCyan).Printf("%-14s", label+":")
	fmt.Println(value)
}
