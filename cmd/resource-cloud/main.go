// Package main is the entry point of the resource-cloud orchestration core.
// One binary runs every process role: the HTTP API, the provisioning
// workers and the reconciliation scheduler.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "resource-cloud",
		Short:         "Self-service compute instance orchestration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		apiCmd(),
		workerCmd(),
		schedulerCmd(),
		allCmd(),
		migrateCmd(),
		tokenCmd(),
	)
	return root
}
