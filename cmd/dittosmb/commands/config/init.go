package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/prompt"
	"github.com/marmos91/dittosmb/pkg/config"
)

var (
	initForce     bool
	initSharePath string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file",
	Long: `Create a dittosmb configuration file with default settings and one
guest-accessible share.

When run from a terminal without --share-path, the share directory is
asked for interactively.

Examples:
  # Create the default configuration
  dittosmb config init

  # Create at a custom path, exporting /srv/files
  dittosmb config init --config /etc/dittosmb.yaml --share-path /srv/files

  # Overwrite an existing file
  dittosmb config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	initCmd.Flags().StringVar(&initSharePath, "share-path", "", "Directory exported by the default share")
}

func runInit(cmd *cobra.Command, args []string) error {
	sharePath := initSharePath
	if sharePath == "" && isTerminal(os.Stdin) {
		p, err := prompt.Input("Directory to share", config.GetDefaultConfig().Shares[0].Path, validateDir)
		if err != nil {
			return err
		}
		sharePath = p
	}

	path, err := config.InitConfig(configPath(cmd), sharePath, initForce)
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to add shares")
	_, _ = fmt.Fprintln(out, "  2. Start the server with: dittosmb start")
	return nil
}

func validateDir(input string) error {
	if !filepath.IsAbs(input) {
		return fmt.Errorf("path must be absolute")
	}
	return nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
