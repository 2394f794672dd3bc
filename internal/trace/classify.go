package trace

import "strings"

const (
	blockSeparator = "----"
	blockHeader    = "IN:"
)

// IsRegisterStart reports whether line opens a register dump for arch.
func IsRegisterStart(arch Arch, line string) bool {
	switch arch {
	case ARM:
		return strings.HasPrefix(line, "R00=")
	case MIPS:
		return strings.HasPrefix(line, "pc=")
	}
	return false
}

// IsBlockSeparator reports whether line is the dash run QEMU prints before
// every disassembled block.
func IsBlockSeparator(line string) bool {
	return strings.HasPrefix(line, blockSeparator)
}

// IsBlockHeader reports whether line is the "IN:" line that follows a separator.
func IsBlockHeader(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), blockHeader)
}

// IsBlank reports whether line holds only whitespace.
func IsBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// splitAssign splits "R00=00000000" into name and value.
func splitAssign(tok string) (name, value string, ok bool) {
	return strings.Cut(tok, "=")
}

// assignments collects every name=value token of line into regs and returns
// how many it found.
func assignments(line string, regs map[string]string) int {
	n := 0
	for _, tok := range strings.Fields(line) {
		name, value, ok := splitAssign(tok)
		if !ok || name == "" {
			continue
		}
		regs[name] = value
		n++
	}
	return n
}

// pairs stores alternating name/value tokens into regs. It fails on an odd
// token count.
func pairs(toks []string, regs map[string]string) bool {
	if len(toks) == 0 || len(toks)%2 != 0 {
		return false
	}
	for i := 0; i < len(toks); i += 2 {
		regs[toks[i]] = toks[i+1]
	}
	return true
}

// after returns the token following the first occurrence of key, skipping an
// AArch32/AArch64 qualifier.
func after(toks []string, key string) string {
	for i := 0; i < len(toks)-1; i++ {
		if toks[i] != key {
			continue
		}
		v := toks[i+1]
		if strings.HasPrefix(v, "AArch") && i+2 < len(toks) {
			v = toks[i+2]
		}
		return v
	}
	return ""
}
