package trace

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// armDump builds the four register lines of an AArch32 dump with the given PC.
func armDump(pc string) string {
	var b strings.Builder
	for line := 0; line < 4; line++ {
		for col := 0; col < 4; col++ {
			n := line*4 + col
			v := "00000000"
			if n == 15 {
				v = pc
			}
			if col > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "R%02d=%s", n, v)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func parseARM(t *testing.T, log string) []*Snapshot {
	t.Helper()
	snaps, err := ParseSnapshots(strings.NewReader(log), ARM)
	require.NoError(t, err)
	return snaps
}

func TestARMSingleStep(t *testing.T) {
	snaps := parseARM(t, armDump("00008d80")+"PSR=200001d3 --C- A svc32\n")
	require.Len(t, snaps, 1)

	s := snaps[0]
	assert.Equal(t, 0, s.ID)
	assert.Equal(t, 1, s.Line)
	mode, ok := s.ModeName()
	assert.True(t, ok)
	assert.Equal(t, "svc32", mode)
	assert.Equal(t, "00008d80", s.Registers["R15"])
	assert.Equal(t, "00000000", s.Registers["R00"])
	assert.Equal(t, "200001d3", s.Registers["PSR"])
	assert.Len(t, s.Registers, 17)
	assert.Nil(t, s.Exception)
}

func TestARMStatusLineVariants(t *testing.T) {
	tests := []struct {
		name   string
		status string
		mode   string
	}{
		{name: "without security state", status: "PSR=400001d3 -Z-- A svc32", mode: "svc32"},
		{name: "secure", status: "PSR=400001d3 -Z-- A S svc32", mode: "svc32"},
		{name: "non-secure", status: "PSR=60000010 -ZC- A NS usr32", mode: "usr32"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps := parseARM(t, armDump("00000000")+tt.status+"\n")
			require.Len(t, snaps, 1)
			mode, _ := snaps[0].ModeName()
			assert.Equal(t, tt.mode, mode)
		})
	}
}

func TestARMDataAbort(t *testing.T) {
	log := armDump("00008d80") +
		"PSR=200001d3 --C- A svc32\n" +
		"Taking exception 4 [Data Abort]\n" +
		"...from EL1 to EL1\n" +
		"...with ESR 0x25/0x9600003f\n" +
		"...with DFSR 0x8 DFAR 0xf1012014\n"
	snaps := parseARM(t, log)
	require.Len(t, snaps, 1)

	s := snaps[0]
	require.NotNil(t, s.Exception)
	assert.Equal(t, EventTaken, s.Exception.Type)
	assert.Equal(t, "dabt", s.Exception.Kind)
	assert.Equal(t, "EL1", s.Exception.From)
	assert.Equal(t, "EL1", s.Exception.To)
	assert.Equal(t, "0x8", s.Registers["DFSR"])
	assert.Equal(t, "0xf1012014", s.Registers["DFAR"])
	assert.Equal(t, "0x25", s.Registers["EC"])
	assert.Equal(t, "0x9600003f", s.Registers["ESR"])
	assert.Equal(t, "00008d80", s.Registers["R15"])
}

func TestARMPrefetchAbortUsesInstructionFaultRegisters(t *testing.T) {
	log := armDump("00001000") +
		"PSR=200001d3 --C- A svc32\n" +
		"Taking exception 3 [Prefetch Abort] on CPU 0\n" +
		"...from EL0 to EL1\n" +
		"...with ESR 0x20/0x82000006\n" +
		"...with IFSR 0x5 IFAR 0x00001000\n"
	snaps := parseARM(t, log)
	require.Len(t, snaps, 1)
	assert.Equal(t, "pabt", snaps[0].Exception.Kind)
	assert.Equal(t, "0x5", snaps[0].Registers["IFSR"])
	assert.Equal(t, "0x00001000", snaps[0].Registers["IFAR"])
}

func TestARMInterruptClosesAfterSyndrome(t *testing.T) {
	log := armDump("00000100") +
		"PSR=200001d3 --C- A svc32\n" +
		"Taking exception 5 [IRQ]\n" +
		"...from EL1 to EL1\n" +
		"...with ESR 0x0/0x0\n" +
		"...with DFSR 0x8 DFAR 0xf1012014\n" +
		armDump("00000018") +
		"PSR=200001d2 --C- A irq32\n"
	snaps := parseARM(t, log)
	require.Len(t, snaps, 2)

	assert.Equal(t, "irq", snaps[0].Exception.Kind)
	assert.NotContains(t, snaps[0].Registers, "DFSR", "fault line is not part of an IRQ record")
	assert.Equal(t, 1, snaps[1].ID)
	mode, _ := snaps[1].ModeName()
	assert.Equal(t, "irq32", mode)
}

func TestARMModeSwitchReplacesTaken(t *testing.T) {
	log := armDump("00008000") +
		"PSR=60000010 -ZC- A usr32\n" +
		"Taking exception 2 [SVC]\n" +
		"...from EL0 to EL1\n" +
		"...with ESR 0x11/0x46000000\n" +
		"AArch32 mode switch from usr to svc PC 0x00000008\n"
	snaps := parseARM(t, log)
	require.Len(t, snaps, 1)

	e := snaps[0].Exception
	require.NotNil(t, e)
	assert.Equal(t, EventModeSwitch, e.Type)
	assert.Equal(t, "swi", e.Kind)
	assert.True(t, e.Subsumed)
	assert.Equal(t, "usr", e.From)
	assert.Equal(t, "svc", e.To)
	assert.Equal(t, "0x00000008", e.PC)
}

func TestARMExceptionReturn(t *testing.T) {
	tests := []struct {
		name string
		line string
		from string
		to   string
		pc   string
	}{
		{
			name: "aarch32",
			line: "Exception return from AArch32 svc to usr PC 0x00010004",
			from: "svc", to: "usr", pc: "0x00010004",
		},
		{
			name: "aarch64 levels",
			line: "Exception return from AArch64 EL1 to AArch32 EL0 PC 0x8040",
			from: "EL1", to: "EL0", pc: "0x8040",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snaps := parseARM(t, armDump("00000000")+"PSR=600001d3 -ZC- A svc32\n"+tt.line+"\n")
			require.Len(t, snaps, 1)
			e := snaps[0].Exception
			require.NotNil(t, e)
			assert.Equal(t, EventReturn, e.Type)
			assert.False(t, e.Subsumed)
			assert.Equal(t, tt.from, e.From)
			assert.Equal(t, tt.to, e.To)
			assert.Equal(t, tt.pc, e.PC)
		})
	}
}

func TestARMLaterTakenOverwritesKind(t *testing.T) {
	log := armDump("00000000") +
		"PSR=200001d3 --C- A svc32\n" +
		"Taking exception 1 [Undefined Instruction]\n" +
		"...from EL1 to EL1\n" +
		"...with ESR 0x0/0x2000000\n" +
		"Taking exception 7 [Breakpoint]\n" +
		"...from EL1 to EL1\n" +
		"...with ESR 0x38/0xe0000000\n"
	snaps := parseARM(t, log)
	require.Len(t, snaps, 1)
	assert.Equal(t, "bkpt", snaps[0].Exception.Kind)
	assert.Equal(t, "0xe0000000", snaps[0].Registers["ESR"])
}

func TestARMUnknownExceptionNumberIsFatal(t *testing.T) {
	log := armDump("00000000") +
		"PSR=200001d3 --C- A svc32\n" +
		"Taking exception 10 [Unknown]\n"
	_, err := ParseSnapshots(strings.NewReader(log), ARM)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSemantic)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 6, de.Line)
}

func TestARMMalformedRecordIsSkipped(t *testing.T) {
	log := "R00=00000000 R01=00000000 R02=00000000\n" +
		"R04=00000000 R05=00000000 R06=00000000 R07=00000000\n" +
		armDump("00000040") +
		"PSR=200001d3 --C- A svc32\n" +
		armDump("00000044") +
		"PSR=200001d3 --C- A S svc32 extra\n" +
		armDump("00000048") +
		"PSR=200001d3 --C- A svc32\n"

	p, err := NewSnapshotParser(ARM)
	require.NoError(t, err)
	var snaps []*Snapshot
	for _, line := range strings.Split(strings.TrimSuffix(log, "\n"), "\n") {
		s, err := p.Feed(line)
		require.NoError(t, err)
		if s != nil {
			snaps = append(snaps, s)
		}
	}
	if s := p.Finish(); s != nil {
		snaps = append(snaps, s)
	}

	require.Len(t, snaps, 2)
	assert.Equal(t, 2, p.Dropped())
	assert.Equal(t, "00000040", snaps[0].Registers["R15"])
	assert.Equal(t, "00000048", snaps[1].Registers["R15"])
	for i, s := range snaps {
		assert.Equal(t, i, s.ID, "ids stay dense after dropped records")
	}
}

func TestARMTruncatedRecordIsDiscarded(t *testing.T) {
	tests := []struct {
		name string
		log  string
	}{
		{name: "inside register dump", log: strings.Join(strings.SplitAfter(armDump("0"), "\n")[:3], "")},
		{name: "before status line", log: armDump("00000000")},
		{
			name: "inside exception continuation",
			log:  armDump("00000000") + "PSR=200001d3 --C- A svc32\nTaking exception 4 [Data Abort]\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, parseARM(t, tt.log))
		})
	}
}

func TestARMUnrelatedLinesCloseRecord(t *testing.T) {
	log := armDump("00000000") +
		"PSR=200001d3 --C- A svc32\n" +
		"Trace 0: 0x7f00 [00000000/00000000/0x00000000] \n" +
		"Taking exception 4 [Data Abort]\n"
	snaps := parseARM(t, log)
	require.Len(t, snaps, 1)
	assert.Nil(t, snaps[0].Exception, "annotations after an unrelated line belong to no step")
}
