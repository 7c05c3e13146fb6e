package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/output"
	"github.com/marmos91/dittosmb/pkg/config"
)

var sharesOutput string

var sharesCmd = &cobra.Command{
	Use:   "shares",
	Short: "Inspect configured shares",
}

var sharesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the shares in the configuration",
	Long: `List the disk and print shares defined in the configuration.

Examples:
  dittosmb shares list
  dittosmb shares list --output json`,
	RunE: runSharesList,
}

func init() {
	sharesListCmd.Flags().StringVarP(&sharesOutput, "output", "o", "table", "Output format (table|json|yaml)")
	sharesCmd.AddCommand(sharesListCmd)
}

// shareList renders configured shares as a table.
type shareList []config.ShareConfig

func (l shareList) Headers() []string {
	return []string{"NAME", "TYPE", "PATH", "READ ONLY", "GUEST", "OPLOCKS"}
}

func (l shareList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, s := range l {
		kind := "disk"
		if s.Printable {
			kind = "print"
		}
		rows = append(rows, []string{
			s.Name,
			kind,
			s.Path,
			strconv.FormatBool(s.ReadOnly),
			strconv.FormatBool(s.GuestOK),
			strconv.FormatBool(!s.DisableOplocks),
		})
	}
	return rows
}

func runSharesList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(sharesOutput)
	if err != nil {
		return err
	}

	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	return output.Print(cmd.OutOrStdout(), format, shareList(cfg.Shares))
}
