// Package trace parses QEMU "-d in_asm,cpu,int" logs into register snapshots and
// chained basic blocks, and answers history queries over the result.
package trace

import (
	"fmt"
	"strings"
)

// Arch selects the register-dump dialect used by the log.
type Arch int

const (
	ARM Arch = iota
	MIPS
)

func (a Arch) String() string {
	switch a {
	case ARM:
		return "arm"
	case MIPS:
		return "mips"
	default:
		return fmt.Sprintf("arch(%d)", int(a))
	}
}

// PCRegister is the register name holding the program counter in a snapshot.
func (a Arch) PCRegister() string {
	if a == MIPS {
		return "pc"
	}
	return "R15"
}

// ParseArch accepts arm, arm32, mips and mips32 in any case.
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "arm", "arm32", "arm-32":
		return ARM, nil
	case "mips", "mips32", "mips-32":
		return MIPS, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownArch, s)
}

// Endian is the byte order the traced guest ran in.
type Endian int

const (
	Little Endian = iota
	Big
)

func (e Endian) String() string {
	if e == Big {
		return "big"
	}
	return "little"
}

// ParseEndian accepts little/le/el and big/be/eb.
func ParseEndian(s string) (Endian, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "little", "le", "el":
		return Little, nil
	case "big", "be", "eb":
		return Big, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEndian, s)
}

// ParseTarget understands the armel, armeb, mipsel and mipseb shorthands.
func ParseTarget(s string) (Arch, Endian, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	for _, suffix := range []string{"el", "eb"} {
		base, ok := strings.CutSuffix(t, suffix)
		if !ok {
			continue
		}
		arch, err := ParseArch(base)
		if err != nil {
			return 0, 0, err
		}
		endian, _ := ParseEndian(suffix)
		return arch, endian, nil
	}
	return 0, 0, fmt.Errorf("%w: %q", ErrUnknownArch, s)
}

// EventType distinguishes the control-flow events attached to a snapshot.
type EventType string

const (
	EventTaken      EventType = "taken"
	EventModeSwitch EventType = "mode_switch"
	EventReturn     EventType = "return"
)

// Exception is the single control-flow event recorded for one execution step.
//
// For EventTaken, Kind names the exception and From/To hold the exception
// level pair when the log reported one. For EventModeSwitch and EventReturn,
// From/To are modes and PC is the target program counter. A mode switch that
// replaced a taken exception in the same step keeps its Kind and sets Subsumed.
type Exception struct {
	Type     EventType `json:"type" yaml:"type" jsonschema:"enum=taken,enum=mode_switch,enum=return"`
	Kind     string    `json:"kind,omitempty" yaml:"kind,omitempty"`
	Subsumed bool      `json:"subsumed,omitempty" yaml:"subsumed,omitempty"`
	From     string    `json:"from,omitempty" yaml:"from,omitempty"`
	To       string    `json:"to,omitempty" yaml:"to,omitempty"`
	PC       string    `json:"pc,omitempty" yaml:"pc,omitempty"`
}

// Snapshot is the register file captured at one execution step.
type Snapshot struct {
	ID        int               `json:"id" yaml:"id"`
	Line      int               `json:"ln" yaml:"ln"`
	Registers map[string]string `json:"register_files" yaml:"register_files"`
	// Mode is nil until the mode-bearing line of the record was parsed.
	Mode      *string    `json:"mode" yaml:"mode"`
	Exception *Exception `json:"exception,omitempty" yaml:"exception,omitempty"`
}

func newSnapshot(id, line int) *Snapshot {
	return &Snapshot{ID: id, Line: line, Registers: make(map[string]string)}
}

// ModeName returns the execution mode and whether it is known.
func (s *Snapshot) ModeName() (string, bool) {
	if s.Mode == nil {
		return "", false
	}
	return *s.Mode, true
}

func (s *Snapshot) setMode(m string) {
	s.Mode = &m
}

// PC returns the normalized program counter for arch.
func (s *Snapshot) PC(arch Arch) (string, bool) {
	v, ok := s.Registers[arch.PCRegister()]
	if !ok {
		return "", false
	}
	return NormalizeAddress(v), true
}

// takeException records a newly taken exception of the given kind.
func (s *Snapshot) takeException(kind string) {
	if s.Exception != nil && s.Exception.Type == EventTaken {
		s.Exception.Kind = kind
		s.Exception.From, s.Exception.To = "", ""
		return
	}
	s.Exception = &Exception{Type: EventTaken, Kind: kind}
}

// switchTo replaces any event with a mode switch or exception return.
func (s *Snapshot) switchTo(typ EventType, from, to, pc string) {
	e := &Exception{Type: typ, From: from, To: to, PC: pc}
	if prev := s.Exception; prev != nil && prev.Type == EventTaken && typ == EventModeSwitch {
		e.Kind = prev.Kind
		e.Subsumed = true
	}
	s.Exception = e
}

// Instruction is one disassembled line of a basic block.
type Instruction struct {
	Line    int    `json:"ln" yaml:"ln"`
	Address string `json:"address" yaml:"address"`
	Raw     string `json:"raw" yaml:"raw"`
	// Opcode is empty when QEMU could not decode the instruction.
	Opcode   string   `json:"opcode,omitempty" yaml:"opcode,omitempty"`
	Operands []string `json:"operands" yaml:"operands"`
}

// Decoded reports whether the disassembler produced a mnemonic.
func (i Instruction) Decoded() bool { return i.Opcode != "" }

// Block is one emission of a translated basic block. Blocks emitted later at
// the same entry address hang off Next in log order.
type Block struct {
	Entry        string        `json:"in" yaml:"in"`
	Symbol       string        `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Instructions []Instruction `json:"instructions" yaml:"instructions"`
	Size         int           `json:"size" yaml:"size"`
	Next         *Block        `json:"next,omitempty" yaml:"next,omitempty"`
}

// Chained reports whether a later emission at the same address exists.
func (b *Block) Chained() bool { return b.Next != nil }

// FirstLine is the log line of the first instruction.
func (b *Block) FirstLine() int {
	if len(b.Instructions) == 0 {
		return 0
	}
	return b.Instructions[0].Line
}

// LastLine is the log line of the last instruction.
func (b *Block) LastLine() int {
	if len(b.Instructions) == 0 {
		return 0
	}
	return b.Instructions[len(b.Instructions)-1].Line
}

// Len counts the nodes of the chain starting at b.
func (b *Block) Len() int {
	n := 0
	for node := b; node != nil; node = node.Next {
		n++
	}
	return n
}

// NormalizeAddress strips a 0x prefix and a trailing colon and lowercases the
// digits, so "0x00008D80:" and "00008d80" compare equal.
func NormalizeAddress(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ":")
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return strings.ToLower(s)
}
