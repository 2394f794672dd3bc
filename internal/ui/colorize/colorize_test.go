package colorize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"qemutrace/internal/trace"
)

func TestPlainWhenDisabled(t *testing.T) {
	t.Setenv(EnvNoColor, "1")
	assert.False(t, Enabled())
	assert.Equal(t, "00000000  e3a00000  mov r0, #0", Instruction(trace.ARM, "00000000", "e3a00000", "mov r0, #0"))
	assert.Equal(t, "00000004  ffffffff  (undecoded)", Instruction(trace.ARM, "00000004", "ffffffff", ""))
	assert.Equal(t, "mov r0, #0", Code(trace.ARM, "mov r0, #0"))
	assert.Equal(t, "_start:", Label("_start"))
}

func TestColouredKeepsText(t *testing.T) {
	t.Setenv(EnvNoColor, "")
	for _, arch := range []trace.Arch{trace.ARM, trace.MIPS} {
		out := Instruction(arch, "80000180", "401a6800", "mfc0 k0,c0_cause")
		assert.Contains(t, out, "\x1b[")
		assert.Equal(t, "80000180  401a6800  mfc0 k0,c0_cause", StripANSI(out))
	}
	assert.Equal(t, "reset:", StripANSI(Label("reset")))
}
