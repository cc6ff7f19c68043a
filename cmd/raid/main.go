package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MJE43/raid-extract/internal/api"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:          "raid",
		Short:        "Raid extraction engine, seed service and bot tooling",
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newSimulateCmd(),
		newPlayCmd(),
		newReconcileCmd(),
		newTokenCmd(),
		newLoginCmd(),
		newVersionCmd(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := api.GetVersionInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "raid %s (commit %s, built %s)\n", v.EngineVersion, v.GitCommit, v.BuildTime)
			return nil
		},
	}
}
