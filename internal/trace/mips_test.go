package trace

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mipsGPRNames = []string{
	"r0", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "s8", "ra",
}

// mipsDump builds a full MIPS32 step record up to and including the config lines.
func mipsDump(pc, status string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "pc=0x%s HI=0x00000000 LO=0x00000000 ds 00ea %s 0\n", pc, pc)
	for line := 0; line < 8; line++ {
		fmt.Fprintf(&b, "GPR%02d:", line*4)
		for col := 0; col < 4; col++ {
			fmt.Fprintf(&b, " %s 00000000", mipsGPRNames[line*4+col])
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "CP0 Status  0x%s Cause   0x00000000 EPC    0x00000000\n", status)
	b.WriteString("    Config0 0x80008482 Config1 0x9e190c8f LLAddr 0x00000000\n")
	b.WriteString("    Config2 0x80000000 Config3 0x00000000\n")
	b.WriteString("    Config4 0x00000000 Config5 0x00000000\n")
	return b.String()
}

func parseMIPS(t *testing.T, log string) []*Snapshot {
	t.Helper()
	snaps, err := ParseSnapshots(strings.NewReader(log), MIPS)
	require.NoError(t, err)
	return snaps
}

func TestMIPSSingleStep(t *testing.T) {
	snaps := parseMIPS(t, mipsDump("bfc00000", "00400004"))
	require.Len(t, snaps, 1)

	s := snaps[0]
	mode, ok := s.ModeName()
	require.True(t, ok)
	assert.Equal(t, "kernel", mode)
	assert.Equal(t, "0xbfc00000", s.Registers["pc"])
	assert.Equal(t, "0x00000000", s.Registers["HI"])
	assert.Equal(t, "00000000", s.Registers["ra"])
	assert.Equal(t, "0x00400004", s.Registers["Status"])
	assert.Equal(t, "0x9e190c8f", s.Registers["Config1"])
	assert.Equal(t, "0x00000000", s.Registers["Config5"])
	for _, name := range mipsGPRNames {
		assert.Contains(t, s.Registers, name)
	}
	pc, _ := s.PC(MIPS)
	assert.Equal(t, "bfc00000", pc)
}

func TestMIPSModeDecode(t *testing.T) {
	tests := []struct {
		status string
		mode   string
	}{
		{status: "00400004", mode: "kernel"},
		{status: "0040000c", mode: "supervisor"},
		{status: "00400010", mode: "user"},
		{status: "10000013", mode: "user"},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			snaps := parseMIPS(t, mipsDump("80000000", tt.status))
			require.Len(t, snaps, 1)
			mode, _ := snaps[0].ModeName()
			assert.Equal(t, tt.mode, mode)
		})
	}
}

func TestMIPSReservedModeIsFatal(t *testing.T) {
	_, err := ParseSnapshots(strings.NewReader(mipsDump("80000000", "00000018")), MIPS)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSemantic)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 10, de.Line)
	assert.Equal(t, "mips.gpr", de.State)
}

func TestMIPSUnparseableStatusIsFatal(t *testing.T) {
	log := strings.Replace(mipsDump("80000000", "00000000"), "Status  0x00000000", "Status  0xzz", 1)
	_, err := ParseSnapshots(strings.NewReader(log), MIPS)
	assert.ErrorIs(t, err, ErrSemantic)
}

func TestMIPSInterrupt(t *testing.T) {
	log := mipsDump("bfc00004", "00400004") +
		"mips_cpu_do_interrupt enter: PC bfc00004 EPC 00000000 syscall exception\n" +
		"mips_cpu_do_interrupt: PC 80000180 EPC bfc00004 cause 8\n" +
		"    S 00400006 C 00000020 A 00000000 D 00000000\n"
	snaps := parseMIPS(t, log)
	require.Len(t, snaps, 1)

	s := snaps[0]
	require.NotNil(t, s.Exception)
	assert.Equal(t, EventTaken, s.Exception.Type)
	assert.Equal(t, "sys", s.Exception.Kind)
	assert.Equal(t, "0xbfc00004", s.Registers["EPC"])
	assert.Equal(t, "0x00400006", s.Registers["Status"])
	assert.Equal(t, "0x00000020", s.Registers["Cause"])
	assert.NotContains(t, s.Registers, "BadVAddr")
	mode, _ := s.ModeName()
	assert.Equal(t, "kernel", mode, "mode comes from the dumped Status")
}

func TestMIPSAddressErrorRecordsBadVAddr(t *testing.T) {
	log := mipsDump("80001000", "00400010") +
		"mips_cpu_do_interrupt: PC 80000180 EPC 80001000 cause 4\n" +
		"    S 00400012 C 00000010 A 00000003 D 00000000\n"
	snaps := parseMIPS(t, log)
	require.Len(t, snaps, 1)
	assert.Equal(t, "adel", snaps[0].Exception.Kind)
	assert.Equal(t, "0x00000003", snaps[0].Registers["BadVAddr"])
}

func TestMIPSNestedReportsKeepLatestEPC(t *testing.T) {
	log := mipsDump("80001000", "00400004") +
		"mips_cpu_do_interrupt enter: PC 80001000 EPC 00000000 Interrupt exception\n" +
		"mips_cpu_do_interrupt: PC 80000180 EPC 80001000 cause 0\n" +
		"    S 00400006 C 00008400 A 00000000 D 00000000\n" +
		"mips_cpu_do_interrupt enter: PC 80000180 EPC 80001000 TLB load exception\n" +
		"mips_cpu_do_interrupt: PC 80000000 EPC 80000180 cause 2\n" +
		"    S 00400006 C 00000008 A 7fff0000 D 00000000\n"
	snaps := parseMIPS(t, log)
	require.Len(t, snaps, 1)

	s := snaps[0]
	assert.Equal(t, "tlbl", s.Exception.Kind)
	assert.Equal(t, "0x80000180", s.Registers["EPC"])
	assert.Equal(t, "0x7fff0000", s.Registers["BadVAddr"])
}

func TestMIPSEnterOnlyKeepsReportedName(t *testing.T) {
	log := mipsDump("80001000", "00400004") +
		"do_interrupt enter: PC 80001000 EPC 00000000 Machine check exception\n"
	snaps := parseMIPS(t, log)
	require.Len(t, snaps, 1)
	assert.Equal(t, "machine_check", snaps[0].Exception.Kind)
	assert.Equal(t, "0x00000000", snaps[0].Registers["EPC"])
}

func TestMIPSUnknownCauseIsFatal(t *testing.T) {
	log := mipsDump("80001000", "00400004") +
		"mips_cpu_do_interrupt: PC 80000180 EPC 80001000 cause 28\n"
	_, err := ParseSnapshots(strings.NewReader(log), MIPS)
	assert.ErrorIs(t, err, ErrSemantic)
}

func TestMIPSMissingCP0IsSkipped(t *testing.T) {
	full := mipsDump("80000000", "00400004")
	broken := strings.Replace(full, "GPR28:", "XYZ28:", 1)
	snaps := parseMIPS(t, broken+mipsDump("80000004", "00400004"))
	require.Len(t, snaps, 1)
	assert.Equal(t, 0, snaps[0].ID)
	assert.Equal(t, "0x80000004", snaps[0].Registers["pc"])
}

func TestMIPSFixtures(t *testing.T) {
	for _, name := range []string{"testdata/mipsel.trace", "testdata/mipseb.trace"} {
		t.Run(name, func(t *testing.T) {
			f, err := os.Open(name)
			require.NoError(t, err)
			defer f.Close()

			snaps, err := ParseSnapshots(f, MIPS)
			require.NoError(t, err)
			require.Len(t, snaps, 2)

			assert.Equal(t, 6, snaps[0].Line)
			assert.Equal(t, "sys", snaps[0].Exception.Kind)
			assert.Equal(t, 26, snaps[1].Line)
			assert.Nil(t, snaps[1].Exception)
			mode, _ := snaps[1].ModeName()
			assert.Equal(t, "user", mode)
			assert.Equal(t, "0x00000000", snaps[1].Registers["Config4"])
		})
	}
}

// mipsLines returns the first n lines of log.
func mipsLines(log string, n int) string {
	return strings.Join(strings.SplitAfter(log, "\n")[:n], "")
}

func TestMIPSTruncatedRecordIsDiscarded(t *testing.T) {
	dump := mipsDump("80001000", "00400004")
	tests := []struct {
		name string
		log  string
	}{
		{name: "inside GPR run", log: mipsLines(dump, 5)},
		{name: "after CP0 line", log: mipsLines(dump, 10)},
		{name: "inside config block", log: mipsLines(dump, 12)},
		{
			name: "inside exception detail",
			log:  dump + "mips_cpu_do_interrupt: PC 80000180 EPC 80001000 cause 8\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewSnapshotParser(MIPS)
			require.NoError(t, err)
			for _, line := range strings.Split(strings.TrimSuffix(tt.log, "\n"), "\n") {
				s, err := p.Feed(line)
				require.NoError(t, err)
				assert.Nil(t, s)
			}
			assert.Nil(t, p.Finish())
			assert.Equal(t, 0, p.Emitted())
			assert.Equal(t, 1, p.Dropped())
		})
	}
}

func TestMIPSShortConfigBlockClosesAtNextRecord(t *testing.T) {
	short := strings.Replace(mipsDump("80000000", "00400004"), "    Config4 0x00000000 Config5 0x00000000\n", "", 1)
	snaps := parseMIPS(t, short+mipsDump("80000004", "00400004"))
	require.Len(t, snaps, 2)
	assert.NotContains(t, snaps[0].Registers, "Config4")
	assert.Equal(t, "0x80000000", snaps[0].Registers["Config2"])
	assert.Equal(t, "0x80000004", snaps[1].Registers["pc"])
}
