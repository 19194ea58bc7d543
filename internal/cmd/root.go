// Package cmd is the raices command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "raices",
	Short: "Auth and dashboard backend for the Raíces Vivas tourism marketplace",
	Long: `raices serves sign-up, sign-in and profile endpoints for hosts,
coordinators and tourists, and routes each signed-in client to the
dashboard of its role.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExecuteContext runs the root command. Cancelling ctx stops a running server.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (environment variables override it)")
	rootCmd.Version = Version
}
