package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"qemutrace/internal/output"
	"qemutrace/internal/trace"
)

// streamRecord is one snapshot of a streaming dump together with the entry
// of the block it resolved to.
type streamRecord struct {
	*trace.Snapshot `yaml:",inline"`
	Block           string `json:"block,omitempty" yaml:"block,omitempty"`
}

var parseCmd = &cobra.Command{
	Use:   "parse <log>",
	Short: "Dump snapshots and blocks as JSON or YAML",
	Long: `Parse a trace log and dump what it holds.

In eager mode the dump is one document with snapshots keyed by id and block
chains keyed by entry address. In streaming mode every snapshot is written as
soon as it is read, one JSON object per line or one YAML document each.`,
	Example: `
# First 10 snapshots as YAML
qemutrace parse -t armel -f yaml -l 10 qemu.log

# Whole trace into ./dumps/qemu.json
qemutrace parse -t mipseb -l 0 -o dumps qemu.log
  `,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, st, err := openSource(cmd, args[0], nil)
		if err != nil {
			return err
		}
		format, err := output.ParseFormat(st.cfg.Format)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		save, _ := cmd.Flags().GetBool("save")
		save = save || cmd.Flags().Changed("out")

		if src.Mode() == trace.Streaming {
			out := cmd.OutOrStdout()
			if save {
				if err := os.MkdirAll(st.cfg.OutDir, 0755); err != nil {
					return err
				}
				path := filepath.Join(st.cfg.OutDir, name+format.Ext())
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
				defer fmt.Fprintln(cmd.ErrOrStderr(), "wrote", path)
			}
			return streamSnapshots(out, src, format, st.cfg.Limit)
		}

		c, err := src.Corpus()
		if err != nil {
			return err
		}
		doc := output.NewDocument(c, st.cfg.Limit)
		if save {
			path, err := output.WriteFile(st.cfg.OutDir, name, doc, format)
			if err != nil {
				return err
			}
			slog.Info("Wrote dump", "path", path, "snapshots", len(doc.Snapshots), "blocks", len(doc.Blocks))
			fmt.Fprintln(cmd.ErrOrStderr(), "wrote", path)
		} else if err := output.Encode(cmd.OutOrStdout(), doc, format); err != nil {
			return err
		}
		printStats(cmd.ErrOrStderr(), filepath.Base(args[0]), c.Stats(), src.Dropped())
		if note := limitNote(doc, c); note != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), note)
		}
		return nil
	},
}

// limitNote explains a dump that holds less than the corpus, or returns "".
func limitNote(doc *output.Document, c *trace.Corpus) string {
	snaps, addrs := len(doc.Snapshots), len(doc.Blocks)
	if snaps == c.Len() && addrs == c.Blocks.Len() {
		return ""
	}
	return fmt.Sprintf("  dump limited to %d of %d snapshots and %d of %d block addresses; --limit 0 dumps everything",
		snaps, c.Len(), addrs, c.Blocks.Len())
}

func init() {
	parseCmd.Flags().StringP("format", "f", "", "Dump format: json or yaml")
	parseCmd.Flags().IntP("limit", "l", 0, "Maximum snapshots and block addresses to dump; 0 dumps everything")
	parseCmd.Flags().StringP("out", "o", "", "Write the dump into this directory instead of stdout")
	parseCmd.Flags().BoolP("save", "s", false, "Write the dump into the configured output directory")
}

// streamSnapshots writes each snapshot as it is produced. The source must be
// in streaming mode; limit stops after that many snapshots.
func streamSnapshots(w io.Writer, src *trace.Source, format output.Format, limit int) error {
	var encode func(any) error
	switch format {
	case output.YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		encode = enc.Encode
	default:
		encode = json.NewEncoder(w).Encode
	}

	n := 0
	for s, err := range src.Snapshots() {
		if err != nil {
			return err
		}
		rec := streamRecord{Snapshot: s}
		if b, ok, err := src.Resolve(s); err != nil {
			return err
		} else if ok {
			rec.Block = b.Entry
		}
		if err := encode(rec); err != nil {
			return fmt.Errorf("encode snapshot %d: %w", s.ID, err)
		}
		n++
		if limit > 0 && n == limit {
			break
		}
	}
	return nil
}

// printStats writes the corpus summary shown by --no-tui and after parse.
func printStats(w io.Writer, name string, st trace.Stats, dropped int) {
	fmt.Fprintf(w, "%s: %d snapshots", name, st.Snapshots)
	if dropped > 0 {
		fmt.Fprintf(w, ", %d dropped", dropped)
	}
	fmt.Fprintln(w)

	if len(st.Exceptions) > 0 {
		var parts []string
		for _, typ := range slices.Sorted(maps.Keys(st.Exceptions)) {
			parts = append(parts, fmt.Sprintf("%s=%d", typ, st.Exceptions[typ]))
		}
		fmt.Fprintf(w, "  events:     %s\n", strings.Join(parts, " "))
	}
	fmt.Fprintf(w, "  blocks:     %d addresses, %d translations, %d chained\n", st.Addresses, st.Blocks, st.Chained)
	fmt.Fprintf(w, "  unresolved: %d\n", st.Unresolved)
}
