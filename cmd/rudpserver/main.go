// Command rudpserver is the process entry point: a cobra root command
// with "serve" and "version" subcommands, replacing the teacher's bare
// main()+flag-free loadConfig() (core/main.go) with the CLI stack
// 0xinfinitykernel-telepresence uses (spf13/cobra) for the rest of the
// pack's multi-subcommand binaries.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "rudpserver",
		Short: "Reliable-UDP game transport and room fabric server",
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newVersionCommand())
	return root
}
