package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qemutrace/internal/trace"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qemutrace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, "target: mipseb\nformat: yaml\nlimit: 0\noutDir: dumps\nnoColor: true\n")
	cfg, err := Load(path, false)
	require.NoError(t, err)

	assert.Equal(t, "yaml", cfg.Format)
	assert.Equal(t, 0, cfg.Limit)
	assert.Equal(t, "dumps", cfg.OutDir)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "eager", cfg.Mode, "unset keys keep defaults")

	arch, endian, err := cfg.Machine()
	require.NoError(t, err)
	assert.Equal(t, trace.MIPS, arch)
	assert.Equal(t, trace.Big, endian)
}

func TestLoadMissing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	cfg, err := Load(missing, true)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(missing, false)
	assert.ErrorIs(t, err, os.ErrNotExist)

	cfg, err = Load("", false)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Limit)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "arch", body: "arch: sparc\n"},
		{name: "target", body: "target: x86el\n"},
		{name: "endian", body: "endian: middle\n"},
		{name: "mode", body: "mode: batch\n"},
		{name: "format", body: "format: xml\n"},
		{name: "limit", body: "limit: -1\n"},
		{name: "syntax", body: "arch: [arm\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), false)
			assert.Error(t, err)
		})
	}
}
