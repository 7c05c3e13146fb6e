// Package commands implements the dittosmb CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "dittosmb",
	Short: "dittosmb - SMB1/CIFS file and print server",
	Long: `dittosmb serves local directories to SMB1 (CIFS, NT LM 0.12) clients.

It implements the classic file, directory, locking and print commands
with AndX chaining, blocking byte-range locks and oplocks.

Use "dittosmb [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dittosmb/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(sharesCmd)
	rootCmd.AddCommand(config.Cmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
