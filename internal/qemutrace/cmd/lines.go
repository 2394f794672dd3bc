package cmd

import (
	"context"
	"fmt"

	"github.com/nxadm/tail"
	"github.com/spf13/cobra"
)

// tailLines feeds each line of path to fn. With follow set it keeps waiting
// for appended lines until ctx is done; otherwise it stops at end of file.
func tailLines(ctx context.Context, path string, follow bool, fn func(num int, line string) error) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:        follow,
		ReOpen:        follow,
		MustExist:     true,
		CompleteLines: true,
		Logger:        tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("tail %s: %w", path, err)
	}
	defer t.Cleanup()
	defer t.Stop()

	num := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Wait()
			}
			if line.Err != nil {
				return fmt.Errorf("tail %s: %w", path, line.Err)
			}
			num++
			if err := fn(num, line.Text); err != nil {
				return err
			}
		}
	}
}

var linesCmd = &cobra.Command{
	Use:   "lines <log>",
	Short: "Print the raw lines of a trace log",
	Example: `
# Watch a log while QEMU writes it
qemutrace lines -f qemu.log | grep Taking
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		follow, _ := cmd.Flags().GetBool("follow")
		number, _ := cmd.Flags().GetBool("number")
		out := cmd.OutOrStdout()
		return tailLines(cmd.Context(), args[0], follow, func(num int, line string) error {
			if number {
				_, err := fmt.Fprintf(out, "%6d  %s\n", num, line)
				return err
			}
			_, err := fmt.Fprintln(out, line)
			return err
		})
	},
}

func init() {
	linesCmd.Flags().BoolP("follow", "f", false, "Keep printing lines as they are appended")
	linesCmd.Flags().BoolP("number", "N", false, "Prefix each line with its line number")
}
