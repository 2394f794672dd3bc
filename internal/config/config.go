// Package config loads the optional qemutrace YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"qemutrace/internal/output"
	"qemutrace/internal/trace"
)

// Config holds defaults for the CLI. Flags given on the command line win.
type Config struct {
	Target  string `json:"target,omitempty" yaml:"target,omitempty" jsonschema:"title=Target,description=Shorthand such as armel or mipseb; sets arch and endian,example=armel"`
	Arch    string `json:"arch,omitempty" yaml:"arch,omitempty" jsonschema:"title=Architecture,enum=arm,enum=mips"`
	Endian  string `json:"endian,omitempty" yaml:"endian,omitempty" jsonschema:"title=Endianness,enum=little,enum=big"`
	Mode    string `json:"mode,omitempty" yaml:"mode,omitempty" jsonschema:"title=Mode,description=Snapshot production mode,enum=eager,enum=streaming"`
	Format  string `json:"format,omitempty" yaml:"format,omitempty" jsonschema:"title=Output Format,enum=json,enum=yaml"`
	Limit   int    `json:"limit,omitempty" yaml:"limit,omitempty" jsonschema:"title=Limit,description=Maximum snapshots and block addresses to dump; 0 dumps everything,minimum=0"`
	OutDir  string `json:"outDir,omitempty" yaml:"outDir,omitempty" jsonschema:"title=Output Directory,description=Directory for parse dumps"`
	NoColor bool   `json:"noColor,omitempty" yaml:"noColor,omitempty" jsonschema:"title=No Color,description=Disable disassembly colouring"`
	LogFile string `json:"logFile,omitempty" yaml:"logFile,omitempty" jsonschema:"title=Log File,description=Write logs here instead of stderr"`
	Debug   bool   `json:"debug,omitempty" yaml:"debug,omitempty" jsonschema:"title=Debug,description=Enable debug logging"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Arch:   "arm",
		Endian: "little",
		Mode:   "eager",
		Format: "json",
		Limit:  100,
		OutDir: ".",
	}
}

// Load reads path over the defaults. A missing file is not an error when
// optional is set.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every enumerated field.
func (c Config) Validate() error {
	if _, _, err := c.Machine(); err != nil {
		return err
	}
	if _, err := trace.ParseMode(c.Mode); err != nil {
		return err
	}
	if _, err := output.ParseFormat(c.Format); err != nil {
		return err
	}
	if c.Limit < 0 {
		return fmt.Errorf("limit must not be negative, got %d", c.Limit)
	}
	return nil
}

// Machine resolves the architecture and endianness. A target shorthand takes
// precedence over the separate fields.
func (c Config) Machine() (trace.Arch, trace.Endian, error) {
	if c.Target != "" {
		return trace.ParseTarget(c.Target)
	}
	arch, err := trace.ParseArch(c.Arch)
	if err != nil {
		return 0, 0, err
	}
	endian, err := trace.ParseEndian(c.Endian)
	if err != nil {
		return 0, 0, err
	}
	return arch, endian, nil
}
