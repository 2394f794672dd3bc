package cmd

import "github.com/spf13/cobra"

var viewCmd = &cobra.Command{
	Use:   "view <log>",
	Short: "Step through snapshots in the navigator",
	Long: `Open the interactive navigator.

Keys: n/→ next, p/← previous, e next exception return, g/G first and last, q quit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runView(cmd, args[0])
	},
}

func init() {
	viewCmd.Flags().String("elf", "", "Guest ELF image for symbol labels")
	viewCmd.Flags().Int("start", 0, "Snapshot id to open at")
}
