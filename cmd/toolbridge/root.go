package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "toolbridge",
		Short:         "Connect to MCP tool providers and run their tools",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "path to the YAML configuration")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug|info|warn|error)")

	cmd.AddCommand(newToolsCmd(opts))
	cmd.AddCommand(newCallCmd(opts))
	cmd.AddCommand(newBatchCmd(opts))
	return cmd
}

func defaultConfigPath() string {
	if p := os.Getenv("TOOLBRIDGE_CONFIG"); p != "" {
		return p
	}
	return "toolbridge.yaml"
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
