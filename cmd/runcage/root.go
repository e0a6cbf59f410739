// SPDX-License-Identifier: MPL-2.0

package main

import (
	"github.com/spf13/cobra"
)

var (
	// verbose enables debug logging.
	verbose bool
	// cfgFile allows specifying a custom config file.
	cfgFile string

	// rootCmd represents the base command when called without any subcommands.
	rootCmd = &cobra.Command{
		Use:   "runcage",
		Short: "Run build/test commands in tiered isolation",
		Long: `runcage runs arbitrary build/test commands behind one uniform contract
while hiding where they actually execute: directly on the host, inside a
one-shot docker container, or inside an isolated micro virtual machine
that runs its own docker daemon.

The tier is chosen from configuration (vm.enabled) and from whether a
command carries a container image. Resource limits, workspace mounting,
and shell quoting across the VM's remote-exec boundary are handled for
you.

Examples:
  runcage run -- go test ./...
  runcage run --image golang:1.25 -- go build ./...
  RUNCAGE_VM_ENABLED=true runcage run --image alpine:3.20 -- make test`,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./runcage.toml)")

	rootCmd.AddCommand(runCmd)
}
