package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"qemutrace/internal/elfx"
	"qemutrace/internal/trace"
)

var followCmd = &cobra.Command{
	Use:   "follow <log>",
	Short: "Print snapshots as QEMU writes them",
	Long: `Follow a growing log and print every snapshot the moment its record closes,
together with the block it executes. Nothing but the block index is kept in memory.`,
	Example: `
# Watch a running guest
qemu-system-arm -d in_asm,cpu,int -D qemu.log ... &
qemutrace follow -t armel qemu.log

# One JSON object per snapshot of a finished log
qemutrace follow --no-follow --json -t mipsel qemu.log
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := settingsFrom(cmd)
		if err != nil {
			return err
		}
		elf, err := openELF(cmd, st)
		if err != nil {
			return err
		}
		if elf != nil {
			defer elf.Close()
		}
		noFollow, _ := cmd.Flags().GetBool("no-follow")
		asJSON, _ := cmd.Flags().GetBool("json")

		f, err := newFollower(cmd.OutOrStdout(), st, elf, asJSON)
		if err != nil {
			return err
		}
		err = tailLines(cmd.Context(), args[0], !noFollow, func(_ int, line string) error {
			return f.feed(line)
		})
		if err != nil {
			return err
		}
		return f.finish()
	},
}

func init() {
	followCmd.Flags().Bool("no-follow", false, "Stop at the end of the file instead of waiting for more")
	followCmd.Flags().Bool("json", false, "Print one JSON object per snapshot")
	followCmd.Flags().String("elf", "", "Guest ELF image for symbol labels")
}

// follower runs both parsers over one pass of lines.
type follower struct {
	out    io.Writer
	arch   trace.Arch
	elf    *elfx.Image
	enc    *json.Encoder
	snaps  *trace.SnapshotParser
	blocks *trace.BlockParser
}

func newFollower(out io.Writer, st *settings, elf *elfx.Image, asJSON bool) (*follower, error) {
	snaps, err := trace.NewSnapshotParser(st.arch, trace.WithLogger(st.logger))
	if err != nil {
		return nil, err
	}
	f := &follower{
		out:    out,
		arch:   st.arch,
		elf:    elf,
		snaps:  snaps,
		blocks: trace.NewBlockParser(trace.WithLogger(st.logger)),
	}
	if asJSON {
		f.enc = json.NewEncoder(out)
	}
	return f, nil
}

// feed hands the block parser the line first, so a block translated just
// before a register dump is indexed when that snapshot closes.
func (f *follower) feed(line string) error {
	f.blocks.Feed(line)
	s, err := f.snaps.Feed(line)
	if s != nil {
		if perr := f.print(s); perr != nil {
			return perr
		}
	}
	return err
}

func (f *follower) finish() error {
	f.blocks.Finish()
	if s := f.snaps.Finish(); s != nil {
		if err := f.print(s); err != nil {
			return err
		}
	}
	slog.Debug("follow finished", "snapshots", f.snaps.Emitted(), "dropped", f.snaps.Dropped()+f.blocks.Dropped())
	return nil
}

func (f *follower) print(s *trace.Snapshot) error {
	b, ok := f.blocks.Index().Resolve(s, f.arch)
	if f.enc != nil {
		rec := streamRecord{Snapshot: s}
		if ok {
			rec.Block = b.Entry
		}
		return f.enc.Encode(rec)
	}

	pc, _ := s.PC(f.arch)
	mode, _ := s.ModeName()
	line := fmt.Sprintf("#%-6d ln %-8d %-10s pc %s", s.ID, s.Line, mode, pc)
	if ok {
		line += "  block " + b.Entry
		if b.Symbol != "" {
			line += " <" + elfx.Demangle(b.Symbol) + ">"
		} else if f.elf != nil {
			if va, err := strconv.ParseUint(b.Entry, 16, 64); err == nil {
				if label := f.elf.Label(va); label != "" {
					line += " <" + label + ">"
				}
			}
		}
	}
	if e := s.Exception; e != nil {
		line += "  " + string(e.Type)
		if e.Kind != "" {
			line += " " + e.Kind
		}
		if e.From != "" || e.To != "" {
			line += fmt.Sprintf(" %s->%s", e.From, e.To)
		}
	}
	_, err := fmt.Fprintln(f.out, line)
	return err
}
