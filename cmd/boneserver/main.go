// Command boneserver is the CLI entrypoint: a cobra root command with a
// serve subcommand (the HTTP application server) and a version
// subcommand, grounded on the teacher pack's cobra+viper config-loading
// idiom (config/types/component.go) generalized to this server's single
// Config record.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "boneserver",
		Short: "Bone-age classification HTTP server",
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}
