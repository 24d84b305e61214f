// Package cmd implements the agrogate command line.
package cmd

import (
	"context"

	"github.com/agroconnect/gate-go/internal/config"
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agrogate",
		Short: "Role and profile route gate for the AgroConnect marketplace",
		Long: `agrogate serves the marketplace's protected pages behind a route gate.
A page renders only when the caller is logged in, holds one of the page's
roles and has created the profile for that role. Everyone else is sent to
the login page or to the profile-creation page for their role.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./configs/agrogate.yaml or /etc/agrogate/agrogate.yaml)")

	root.AddCommand(newServeCmd(), newDecodeCmd(), newCheckCmd(), newVersionCmd())
	return root
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx available to subcommands.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
