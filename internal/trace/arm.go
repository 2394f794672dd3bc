package trace

import (
	"strconv"
	"strings"
)

type armState int

const (
	armRegisters armState = iota
	armStatus
	armAnnotations
	armTakenLevels
	armTakenSyndrome
	armTakenFault
)

var armStateNames = [...]string{
	armRegisters:     "arm.registers",
	armStatus:        "arm.status",
	armAnnotations:   "arm.annotations",
	armTakenLevels:   "arm.exception_levels",
	armTakenSyndrome: "arm.syndrome",
	armTakenFault:    "arm.fault",
}

const armRegisterLines = 4

// armExceptionKinds maps the number in "Taking exception N [...]" to a kind.
var armExceptionKinds = map[int]string{
	1:  "udef",
	2:  "swi",
	3:  "pabt",
	4:  "dabt",
	5:  "irq",
	6:  "fiq",
	7:  "bkpt",
	8:  "exception_exit",
	9:  "kernel_trap",
	11: "hvc",
	12: "hyp_trap",
	13: "smc",
	14: "virq",
	15: "vfiq",
	16: "semihost",
	17: "nocp",
	18: "invstate",
	19: "stkof",
	20: "lazyfp",
	21: "lserr",
	22: "unaligned",
	23: "divbyzero",
	24: "vserr",
	25: "gpc",
}

// armFaultRegister lists the kinds whose syndrome line is followed by a fault
// status/address pair, keyed to the status register name QEMU prints. Every
// other kind, interrupts included, closes after the syndrome line.
var armFaultRegister = map[string]string{
	"dabt": "DFSR",
	"pabt": "IFSR",
}

// armDecoder follows one AArch32 step:
//
//	R00=... R01=... R02=... R03=...   (x4)
//	PSR=400001d3 -Z-- A [S|NS] svc32
//	Taking exception 4 [Data Abort]   (optional, with continuations)
//	...from EL1 to EL1
//	...with ESR 0x25/0x9600003f
//	...with DFSR 0x8 DFAR 0xf1012014
type armDecoder struct {
	st    armState
	lines int
	kind  string
}

func (d *armDecoder) reset() { *d = armDecoder{} }

func (d *armDecoder) state() string { return armStateNames[d.st] }

func (d *armDecoder) complete() bool { return d.st == armAnnotations }

func (d *armDecoder) feed(s *Snapshot, line string) (status, error) {
	toks := strings.Fields(line)
	switch d.st {
	case armRegisters:
		if len(toks) != 4 || assignments(line, s.Registers) != 4 {
			return recordOpen, structural(d.state(), line, "expected 4 register assignments")
		}
		d.lines++
		if d.lines == armRegisterLines {
			d.st = armStatus
		}
		return recordOpen, nil

	case armStatus:
		// The security-state token only exists on CPUs with EL3.
		if len(toks) != 4 && len(toks) != 5 {
			return recordOpen, structural(d.state(), line, "expected 4 or 5 status fields, got %d", len(toks))
		}
		name, value, ok := splitAssign(toks[0])
		if !ok {
			return recordOpen, structural(d.state(), line, "missing status register")
		}
		s.Registers[name] = value
		s.setMode(toks[len(toks)-1])
		d.st = armAnnotations
		return recordOpen, nil

	case armTakenLevels:
		if len(toks) == 0 || toks[0] != "...from" {
			return recordClosedBefore, nil
		}
		if len(toks) != 4 {
			return recordOpen, structural(d.state(), line, "expected exception level pair")
		}
		s.Exception.From, s.Exception.To = toks[1], toks[3]
		d.st = armTakenSyndrome
		return recordOpen, nil

	case armTakenSyndrome:
		if len(toks) < 2 || toks[0] != "...with" || toks[1] != "ESR" {
			return recordClosedBefore, nil
		}
		if len(toks) != 3 {
			return recordOpen, structural(d.state(), line, "expected syndrome value")
		}
		if ec, syn, ok := strings.Cut(toks[2], "/"); ok {
			s.Registers["EC"] = ec
			s.Registers["ESR"] = syn
		} else {
			s.Registers["ESR"] = toks[2]
		}
		if _, ok := armFaultRegister[d.kind]; ok {
			d.st = armTakenFault
		} else {
			d.st = armAnnotations
		}
		return recordOpen, nil

	case armTakenFault:
		if len(toks) < 2 || toks[0] != "...with" || toks[1] != armFaultRegister[d.kind] {
			return recordClosedBefore, nil
		}
		if !pairs(toks[1:], s.Registers) || len(toks) != 5 {
			return recordOpen, structural(d.state(), line, "expected fault status and address")
		}
		d.st = armAnnotations
		return recordOpen, nil
	}

	return d.annotation(s, line, toks)
}

func (d *armDecoder) annotation(s *Snapshot, line string, toks []string) (status, error) {
	switch {
	case strings.HasPrefix(line, "Taking exception"):
		if len(toks) < 3 {
			return recordOpen, structural(d.state(), line, "missing exception number")
		}
		n, err := strconv.Atoi(toks[2])
		if err != nil {
			return recordOpen, structural(d.state(), line, "bad exception number")
		}
		kind, ok := armExceptionKinds[n]
		if !ok {
			return recordOpen, semantic(d.state(), line, "unknown exception number %d", n)
		}
		s.takeException(kind)
		d.kind = kind
		d.st = armTakenLevels
		return recordOpen, nil

	case strings.Contains(line, "mode switch from"):
		s.switchTo(EventModeSwitch, after(toks, "from"), after(toks, "to"), after(toks, "PC"))
		return recordOpen, nil

	case strings.HasPrefix(line, "Exception return from"):
		s.switchTo(EventReturn, after(toks, "from"), after(toks, "to"), after(toks, "PC"))
		return recordOpen, nil
	}
	return recordClosedBefore, nil
}
