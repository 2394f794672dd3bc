package trace

import (
	"strconv"
	"strings"
)

type mipsState int

const (
	mipsHeader mipsState = iota
	mipsGPR
	mipsConfig
	mipsAnnotations
	mipsDetail
)

var mipsStateNames = [...]string{
	mipsHeader:      "mips.header",
	mipsGPR:         "mips.gpr",
	mipsConfig:      "mips.config",
	mipsAnnotations: "mips.annotations",
	mipsDetail:      "mips.detail",
}

const (
	mipsGPRLines    = 8
	mipsConfigLines = 3
)

// mipsExceptionKinds is indexed by the Cause.ExcCode value QEMU reports as
// "cause N". Empty entries are reserved codes.
var mipsExceptionKinds = [32]string{
	0:  "int",
	1:  "mod",
	2:  "tlbl",
	3:  "tlbs",
	4:  "adel",
	5:  "ades",
	6:  "ibe",
	7:  "dbe",
	8:  "sys",
	9:  "bp",
	10: "ri",
	11: "cpu",
	12: "ov",
	13: "tr",
	14: "msafpe",
	15: "fpe",
	18: "c2e",
	19: "tlbri",
	20: "tlbxi",
	21: "msadis",
	22: "mdmx",
	23: "watch",
	24: "mcheck",
	25: "thread",
	26: "dspdis",
	27: "ge",
	30: "cacheerr",
}

// mipsFaultAddress lists the kinds whose detail line carries a meaningful
// BadVAddr. The detail line is consumed for every kind.
var mipsFaultAddress = map[string]bool{
	"mod":   true,
	"tlbl":  true,
	"tlbs":  true,
	"adel":  true,
	"ades":  true,
	"tlbri": true,
	"tlbxi": true,
}

var mipsModes = [...]string{0: "kernel", 1: "supervisor", 2: "user"}

// mipsMode decodes the KSU field (bits 3-4) of a CP0 Status value.
func mipsMode(status string) (string, bool) {
	v, err := strconv.ParseUint(NormalizeAddress(status), 16, 32)
	if err != nil {
		return "", false
	}
	ksu := (v >> 3) & 3
	if int(ksu) >= len(mipsModes) {
		return "", false
	}
	return mipsModes[ksu], true
}

// mipsDecoder follows one MIPS32 step:
//
//	pc=0x80002d30 HI=0x00000000 LO=0x00000000 ds 00ea 80002d30 0
//	GPR00: r0 00000000 at 00000000 v0 00000000 v1 00000000   (x8)
//	CP0 Status  0x10000000 Cause   0x00000000 EPC    0x00000000
//	    Config0 0x80008482 Config1 0x9e190c8f LLAddr 0xffffffff
//	    Config2 0x80000000 Config3 0x00000000
//	    Config4 0x00000000 Config5 0x00000000
//	mips_cpu_do_interrupt enter: PC ... EPC ... Interrupt exception   (optional)
//	mips_cpu_do_interrupt: PC ... EPC ... cause 0
//	    S 10000003 C 00000400 A 00000000 D 00000000
type mipsDecoder struct {
	st      mipsState
	gpr     int
	configs int
	kind    string
}

func (d *mipsDecoder) reset() { *d = mipsDecoder{} }

func (d *mipsDecoder) state() string { return mipsStateNames[d.st] }

// complete reports whether the record may be emitted at end of input. A short
// config block only closes early when another line follows it.
func (d *mipsDecoder) complete() bool { return d.st == mipsAnnotations }

func (d *mipsDecoder) feed(s *Snapshot, line string) (status, error) {
	toks := strings.Fields(line)
	switch d.st {
	case mipsHeader:
		if assignments(line, s.Registers) < 3 {
			return recordOpen, structural(d.state(), line, "expected pc, HI and LO")
		}
		d.st = mipsGPR
		return recordOpen, nil

	case mipsGPR:
		if len(toks) > 0 && strings.HasPrefix(toks[0], "GPR") {
			if d.gpr == mipsGPRLines || !pairs(toks[1:], s.Registers) {
				return recordOpen, structural(d.state(), line, "bad general purpose register line")
			}
			d.gpr++
			return recordOpen, nil
		}
		if len(toks) == 0 || toks[0] != "CP0" {
			return recordOpen, structural(d.state(), line, "expected GPR or CP0 line")
		}
		if len(toks) != 7 || !pairs(toks[1:], s.Registers) {
			return recordOpen, structural(d.state(), line, "expected Status, Cause and EPC")
		}
		status, ok := s.Registers["Status"]
		if !ok {
			return recordOpen, structural(d.state(), line, "missing Status")
		}
		mode, ok := mipsMode(status)
		if !ok {
			return recordOpen, semantic(d.state(), line, "undecodable KSU bits in Status %s", status)
		}
		s.setMode(mode)
		d.st = mipsConfig
		return recordOpen, nil

	case mipsConfig:
		if len(toks) > 0 && strings.HasPrefix(toks[0], "Config") {
			if !pairs(toks, s.Registers) {
				return recordOpen, structural(d.state(), line, "bad config register line")
			}
			d.configs++
			if d.configs == mipsConfigLines {
				d.st = mipsAnnotations
			}
			return recordOpen, nil
		}
		// Older QEMU prints fewer config lines.
		d.st = mipsAnnotations

	case mipsDetail:
		if len(toks) == 0 || toks[0] != "S" {
			return recordClosedBefore, nil
		}
		if len(toks) != 8 {
			return recordOpen, structural(d.state(), line, "expected S, C, A and D values")
		}
		s.Registers["Status"] = hexPrefix(toks[1])
		s.Registers["Cause"] = hexPrefix(toks[3])
		if mipsFaultAddress[d.kind] {
			s.Registers["BadVAddr"] = hexPrefix(toks[5])
		}
		d.st = mipsAnnotations
		return recordOpen, nil
	}

	return d.annotation(s, line, toks)
}

func (d *mipsDecoder) annotation(s *Snapshot, line string, toks []string) (status, error) {
	switch {
	case strings.Contains(line, "do_interrupt enter:"):
		if epc := after(toks, "EPC"); epc != "" {
			s.Registers["EPC"] = hexPrefix(epc)
		}
		if name := mipsEnterName(toks); name != "" && s.Exception == nil {
			s.takeException(name)
		}
		return recordOpen, nil

	case strings.Contains(line, "do_interrupt:"):
		code := after(toks, "cause")
		n, err := strconv.Atoi(code)
		if err != nil {
			return recordOpen, structural(d.state(), line, "bad cause code")
		}
		if n < 0 || n >= len(mipsExceptionKinds) || mipsExceptionKinds[n] == "" {
			return recordOpen, semantic(d.state(), line, "unknown cause code %d", n)
		}
		if epc := after(toks, "EPC"); epc != "" {
			s.Registers["EPC"] = hexPrefix(epc)
		}
		d.kind = mipsExceptionKinds[n]
		s.takeException(d.kind)
		d.st = mipsDetail
		return recordOpen, nil
	}
	return recordClosedBefore, nil
}

// mipsEnterName pulls "<Name>" out of "... EPC 00000000 <Name> exception".
func mipsEnterName(toks []string) string {
	for i, t := range toks {
		if t != "EPC" || i+2 >= len(toks) {
			continue
		}
		words := toks[i+2:]
		if n := len(words); n > 0 && words[n-1] == "exception" {
			words = words[:n-1]
		}
		return strings.ToLower(strings.Join(words, "_"))
	}
	return ""
}

func hexPrefix(v string) string {
	if strings.HasPrefix(v, "0x") {
		return v
	}
	return "0x" + v
}
