package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load and validate a configuration file, and check that every share
directory exists.

Examples:
  dittosmb config validate
  dittosmb config validate --config /etc/dittosmb.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(configPath(cmd))
	if err != nil {
		return err
	}

	var missing []string
	for _, s := range cfg.Shares {
		if fi, err := os.Stat(s.Path); err != nil || !fi.IsDir() {
			missing = append(missing, fmt.Sprintf("%s (%s)", s.Name, s.Path))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("share directories not found: %v", missing)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%d shares)\n", len(cfg.Shares))
	return nil
}
