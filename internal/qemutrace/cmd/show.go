package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"qemutrace/internal/trace"
	"qemutrace/internal/ui/view"
)

const defaultWidth = 100

var showCmd = &cobra.Command{
	Use:   "show <log> <id>",
	Short: "Print one snapshot with its registers, event and block",
	Example: `
# Snapshot 42 with symbol labels from the guest kernel
qemutrace show -t armel --elf vmlinux qemu.log 42
  `,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[1])
		if err != nil || id < 0 {
			return fmt.Errorf("invalid snapshot id %q", args[1])
		}
		eager := trace.Eager
		src, st, err := openSource(cmd, args[0], &eager)
		if err != nil {
			return err
		}
		c, err := src.Corpus()
		if err != nil {
			return err
		}
		s, ok := c.Snapshot(id)
		if !ok {
			return fmt.Errorf("no snapshot %d; the log has %d", id, c.Len())
		}
		elf, err := openELF(cmd, st)
		if err != nil {
			return err
		}
		if elf != nil {
			defer elf.Close()
		}

		width, _ := cmd.Flags().GetInt("width")
		if width <= 0 {
			width = defaultWidth
			if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
				width = w
			}
		}
		out, err := view.NewReport(c, elf).Render(s, width)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	showCmd.Flags().String("elf", "", "Guest ELF image for symbol labels")
	showCmd.Flags().IntP("width", "w", 0, "Wrap width (default terminal width)")
}
