// Package disasm decodes raw instruction words that QEMU printed without a
// mnemonic, so block listings can still show something readable.
package disasm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/arch/arm/armasm"

	"qemutrace/internal/trace"
)

// ErrUnsupported is returned for words no decoder here understands, such as
// Thumb halfwords or MIPS encodings.
var ErrUnsupported = errors.New("disasm: unsupported encoding")

// Inst is a simplified decoded instruction.
type Inst struct {
	VA   uint64  // virtual address of instruction
	Text string  // formatted disassembly string
	Op   string  // mnemonic in lowercase
	Raw  [4]byte // encoding as it sits in memory
}

// Operands is Text without the mnemonic.
func (i Inst) Operands() string {
	_, rest, _ := strings.Cut(i.Text, " ")
	return rest
}

// DecodeARM decodes one A32 word given as the hex text QEMU prints.
func DecodeARM(va uint64, word string) (Inst, error) {
	word = trace.NormalizeAddress(word)
	if len(word) != 8 {
		return Inst{}, fmt.Errorf("%w: %q is not a 32-bit word", ErrUnsupported, word)
	}
	v, err := strconv.ParseUint(word, 16, 32)
	if err != nil {
		return Inst{}, fmt.Errorf("disasm: %w", err)
	}
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], uint32(v))
	inst, err := armasm.Decode(raw[:], armasm.ModeARM)
	if err != nil {
		return Inst{}, fmt.Errorf("disasm: %08x: %w", v, err)
	}
	text := armasm.GNUSyntax(inst)
	op, _, _ := strings.Cut(text, " ")
	return Inst{VA: va, Text: text, Op: op, Raw: raw}, nil
}

// Decode fills in a mnemonic for ins. Instructions QEMU already decoded are
// returned from their own fields.
func Decode(arch trace.Arch, ins trace.Instruction) (Inst, error) {
	va, err := strconv.ParseUint(ins.Address, 16, 64)
	if err != nil {
		return Inst{}, fmt.Errorf("disasm: address %q: %w", ins.Address, err)
	}
	if ins.Decoded() {
		text := ins.Opcode
		if len(ins.Operands) > 0 {
			text += " " + strings.Join(ins.Operands, " ")
		}
		return Inst{VA: va, Text: text, Op: ins.Opcode}, nil
	}
	if arch != trace.ARM {
		return Inst{}, fmt.Errorf("%w: %s", ErrUnsupported, arch)
	}
	return DecodeARM(va, ins.Raw)
}
