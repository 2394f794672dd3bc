package elfx

import (
	"os"
	"runtime"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qemutrace/internal/trace"
)

func openSelf(t *testing.T) *Image {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("test binary is not ELF")
	}
	exe, err := os.Executable()
	require.NoError(t, err)
	im, err := Open(exe)
	require.NoError(t, err)
	t.Cleanup(func() { im.Close() })
	return im
}

func TestLookupSelf(t *testing.T) {
	im := openSelf(t)
	require.NotEmpty(t, im.Symbols)

	const name = "qemutrace/internal/elfx.Open"
	i := slices.IndexFunc(im.Symbols, func(s Symbol) bool { return s.Name == name })
	require.GreaterOrEqual(t, i, 0, "symbol %s", name)
	addr := im.Symbols[i].Addr

	s, off, ok := im.Lookup(addr)
	require.True(t, ok)
	assert.Equal(t, name, s.Name)
	assert.Equal(t, uint64(0), off)
	assert.Equal(t, name, im.Label(addr))

	if s.Size > 4 {
		assert.Equal(t, name+"+0x4", im.Label(addr+4))
	}

	for i := 1; i < len(im.Symbols); i++ {
		assert.LessOrEqual(t, im.Symbols[i-1].Addr, im.Symbols[i].Addr)
	}
}

func TestInText(t *testing.T) {
	im := openSelf(t)
	require.NotZero(t, im.Text.Size)
	assert.True(t, im.InText(im.Text.VA))
	assert.True(t, im.InText(im.Text.VA+im.Text.Size-1))
	assert.False(t, im.InText(im.Text.VA+im.Text.Size))
	assert.False(t, im.InText(0))

	assert.False(t, (&Image{}).InText(0), "no .text section")
}

func TestMatchRejectsHostBinary(t *testing.T) {
	im := openSelf(t)
	assert.Error(t, im.Match(trace.ARM, trace.Little))
	assert.Error(t, im.Match(trace.MIPS, trace.Big))
}

func TestOpenMissing(t *testing.T) {
	_, err := Open("testdata/does-not-exist")
	assert.Error(t, err)
}

func TestDemangle(t *testing.T) {
	assert.Equal(t, "boot::start", Demangle("_ZN4boot5startEv"))
	assert.Equal(t, "reset", Demangle("reset"))
}
