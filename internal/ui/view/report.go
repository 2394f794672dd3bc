// Package view renders snapshot reports and hosts the interactive history
// navigator.
package view

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"qemutrace/internal/disasm"
	"qemutrace/internal/elfx"
	"qemutrace/internal/qemutrace/styles"
	"qemutrace/internal/trace"
	"qemutrace/internal/ui/colorize"
)

// registerOrder lists the dump order of the well-known registers; anything
// else follows alphabetically.
var registerOrder = map[trace.Arch][]string{
	trace.ARM: {
		"R00", "R01", "R02", "R03", "R04", "R05", "R06", "R07",
		"R08", "R09", "R10", "R11", "R12", "R13", "R14", "R15",
		"PSR", "EC", "ESR", "DFSR", "DFAR", "IFSR", "IFAR",
	},
	trace.MIPS: {
		"pc", "HI", "LO",
		"r0", "at", "v0", "v1", "a0", "a1", "a2", "a3",
		"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
		"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
		"t8", "t9", "k0", "k1", "gp", "sp", "s8", "ra",
		"Status", "Cause", "EPC", "BadVAddr",
	},
}

// SortedRegisters returns the register names of s in display order.
func SortedRegisters(arch trace.Arch, s *trace.Snapshot) []string {
	rank := make(map[string]int)
	for i, name := range registerOrder[arch] {
		rank[name] = i + 1
	}
	names := make([]string, 0, len(s.Registers))
	for name := range s.Registers {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b string) int {
		ra, rb := rank[a], rank[b]
		switch {
		case ra != 0 && rb != 0:
			return cmp.Compare(ra, rb)
		case ra != 0:
			return -1
		case rb != 0:
			return 1
		}
		return strings.Compare(a, b)
	})
	return names
}

// Report renders snapshots of an eager corpus.
type Report struct {
	Corpus *trace.Corpus
	// ELF labels block addresses when set.
	ELF *elfx.Image
	// Columns is the number of register name/value pairs per table row.
	Columns int
}

// NewReport returns a report over c with four register pairs per row.
func NewReport(c *trace.Corpus, elf *elfx.Image) *Report {
	return &Report{Corpus: c, ELF: elf, Columns: 4}
}

// Markdown describes s: mode, event, registers, the executing block and the
// ids reachable from it.
func (r *Report) Markdown(s *trace.Snapshot) string {
	c := r.Corpus
	var b strings.Builder

	fmt.Fprintf(&b, "# Snapshot %d\n\n", s.ID)
	mode, ok := s.ModeName()
	if !ok {
		mode = "unknown"
	}
	pc, _ := s.PC(c.Arch)
	fmt.Fprintf(&b, "**line** %d · **mode** `%s` · **pc** `%s`", s.Line, mode, pc)
	if r.ELF != nil {
		if v, err := strconv.ParseUint(pc, 16, 64); err == nil {
			if label := r.ELF.Label(v); label != "" {
				fmt.Fprintf(&b, " · `%s`", label)
			} else if r.ELF.Text.Size > 0 && !r.ELF.InText(v) {
				b.WriteString(" · outside `.text`")
			}
		}
	}
	b.WriteString("\n\n")

	if e := s.Exception; e != nil {
		b.WriteString("## Exception\n\n")
		b.WriteString("| event | kind | from | to | pc |\n|---|---|---|---|---|\n")
		kind := e.Kind
		if e.Subsumed {
			kind += " (subsumed)"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n\n", e.Type, dash(kind), dash(e.From), dash(e.To), dash(e.PC))
	}

	b.WriteString("## Registers\n\n")
	cols := max(r.Columns, 1)
	b.WriteString(strings.Repeat("| reg | value ", cols) + "|\n")
	b.WriteString(strings.Repeat("|---|---", cols) + "|\n")
	names := SortedRegisters(c.Arch, s)
	for i := 0; i < len(names); i += cols {
		for j := i; j < i+cols; j++ {
			if j < len(names) {
				fmt.Fprintf(&b, "| %s | `%s` ", names[j], s.Registers[names[j]])
			} else {
				b.WriteString("| | ")
			}
		}
		b.WriteString("|\n")
	}
	b.WriteString("\n")

	b.WriteString("## Block\n\n")
	if blk, ok := c.Block(s); ok {
		head, _ := c.Blocks.Head(blk.Entry)
		n, total := emission(head, blk)
		fmt.Fprintf(&b, "`%s`", blk.Entry)
		if blk.Symbol != "" {
			fmt.Fprintf(&b, " `%s`", elfx.Demangle(blk.Symbol))
		}
		fmt.Fprintf(&b, " · %d instructions · lines %d-%d · emission %d of %d\n\n",
			blk.Size, blk.FirstLine(), blk.LastLine(), n, total)
	} else {
		fmt.Fprintf(&b, "No block was translated at `%s`.\n\n", pc)
	}

	b.WriteString("## History\n\n")
	var nav []string
	if p, ok := c.Previous(s); ok {
		nav = append(nav, fmt.Sprintf("previous **%d**", p.ID))
	}
	if n, ok := c.Next(s); ok {
		nav = append(nav, fmt.Sprintf("next **%d**", n.ID))
	}
	if ret, ok := c.ExceptionReturnAfter(s); ok {
		nav = append(nav, fmt.Sprintf("exception return **%d** (line %d)", ret.ID, ret.Line))
	}
	if len(nav) == 0 {
		nav = append(nav, "single snapshot")
	}
	b.WriteString(strings.Join(nav, " · ") + "\n")
	return b.String()
}

// Listing formats the instructions of the block executing at s, or "" when
// there is none.
func (r *Report) Listing(s *trace.Snapshot) string {
	blk, ok := r.Corpus.Block(s)
	if !ok {
		return ""
	}
	arch := r.Corpus.Arch
	var lines []string
	if blk.Symbol != "" {
		lines = append(lines, colorize.Label(elfx.Demangle(blk.Symbol)))
	}
	for _, ins := range blk.Instructions {
		if r.ELF != nil && blk.Symbol == "" {
			if v, err := strconv.ParseUint(ins.Address, 16, 64); err == nil {
				if sym, off, ok := r.ELF.Lookup(v); ok && off == 0 {
					lines = append(lines, colorize.Label(elfx.Demangle(sym.Name)))
				}
			}
		}
		text := ""
		if inst, err := disasm.Decode(arch, ins); err == nil {
			text = inst.Text
		}
		lines = append(lines, colorize.Instruction(arch, ins.Address, ins.Raw, text))
	}
	return strings.Join(lines, "\n")
}

// Render produces the terminal form of s: the markdown report rendered for
// width followed by the block listing.
func (r *Report) Render(s *trace.Snapshot, width int) (string, error) {
	renderer, err := styles.GetMarkdownRenderer(max(width-2, 20), !colorize.Enabled())
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	out, err := renderer.Render(r.Markdown(s))
	if err != nil {
		return "", fmt.Errorf("render snapshot %d: %w", s.ID, err)
	}
	out = strings.TrimSuffix(out, "\n")
	if listing := r.Listing(s); listing != "" {
		out += "\n\n" + indent(listing, "  ")
	}
	return out, nil
}

// emission returns the 1-based position of node in the chain at head and the
// chain length.
func emission(head, node *trace.Block) (int, int) {
	pos, n := 0, 0
	for b := head; b != nil; b = b.Next {
		n++
		if b == node {
			pos = n
		}
	}
	return pos, n
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(s, "\n", "\n"+prefix)
}
