// Package elfx reads the symbol table of the guest ELF image so that trace
// addresses can be labelled with function names.
package elfx

import (
	"cmp"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"slices"
	"strings"

	"github.com/ianlancetaylor/demangle"

	"qemutrace/internal/trace"
)

type Image struct {
	Path    string
	File    *elf.File
	Text    Section
	Symbols []Symbol // sorted by Addr
}

type Section struct {
	Name          string
	VA, Off, Size uint64
}

type Symbol struct {
	Name string
	Addr uint64
	Size uint64
	Func bool
}

// Open loads the static and dynamic symbols of path. Undefined, section and
// file symbols are skipped.
func Open(path string) (*Image, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}
	im := &Image{Path: path, File: f}
	if s := f.Section(".text"); s != nil {
		im.Text = Section{s.Name, s.Addr, s.Offset, s.Size}
	}

	seen := make(map[string]bool)
	add := func(syms []elf.Symbol) {
		for _, sym := range syms {
			typ := elf.ST_TYPE(sym.Info)
			if sym.Value == 0 || sym.Name == "" || typ == elf.STT_SECTION || typ == elf.STT_FILE {
				continue
			}
			// ARM mapping symbols ($a, $d, $t) mark code/data runs.
			if strings.HasPrefix(sym.Name, "$") {
				continue
			}
			key := fmt.Sprintf("%s@%x", sym.Name, sym.Value)
			if seen[key] {
				continue
			}
			seen[key] = true
			im.Symbols = append(im.Symbols, Symbol{
				Name: sym.Name,
				Addr: sym.Value,
				Size: sym.Size,
				Func: typ == elf.STT_FUNC,
			})
		}
	}
	// Either table may be absent in a stripped or static image.
	if syms, err := f.Symbols(); err == nil {
		add(syms)
	}
	if syms, err := f.DynamicSymbols(); err == nil {
		add(syms)
	}
	slices.SortStableFunc(im.Symbols, func(a, b Symbol) int { return cmp.Compare(a.Addr, b.Addr) })
	return im, nil
}

// Close closes the underlying file.
func (im *Image) Close() error {
	if im.File == nil {
		return nil
	}
	err := im.File.Close()
	im.File = nil
	return err
}

// Match checks that the image was built for the traced machine.
func (im *Image) Match(arch trace.Arch, endian trace.Endian) error {
	want := map[trace.Arch]elf.Machine{trace.ARM: elf.EM_ARM, trace.MIPS: elf.EM_MIPS}[arch]
	if im.File.Machine != want {
		return fmt.Errorf("elf %s: machine %s, trace is %s", im.Path, im.File.Machine, arch)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if endian == trace.Big {
		order = binary.BigEndian
	}
	if im.File.ByteOrder != order {
		return fmt.Errorf("elf %s: byte order does not match %s-endian trace", im.Path, endian)
	}
	return nil
}

// InText reports whether va falls inside the .text section. It is false for
// every address when the image has no .text.
func (im *Image) InText(va uint64) bool {
	return im.Text.Size > 0 && va >= im.Text.VA && va < im.Text.VA+im.Text.Size
}

// Lookup returns the symbol covering va and the offset into it. A symbol
// without a size only covers its own address. Thumb functions are matched
// with the low bit cleared.
func (im *Image) Lookup(va uint64) (Symbol, uint64, bool) {
	i, _ := slices.BinarySearchFunc(im.Symbols, va+1, func(s Symbol, t uint64) int {
		return cmp.Compare(s.Addr&^1, t)
	})
	for i--; i >= 0; i-- {
		s := im.Symbols[i]
		start := s.Addr &^ 1
		if va == start || va < start+s.Size {
			return s, va - start, true
		}
		if s.Func {
			break
		}
	}
	return Symbol{}, 0, false
}

// Label formats va as "name" or "name+0xoff" with the name demangled, or
// returns "" when no symbol covers va.
func (im *Image) Label(va uint64) string {
	s, off, ok := im.Lookup(va)
	if !ok {
		return ""
	}
	name := Demangle(s.Name)
	if off == 0 {
		return name
	}
	return fmt.Sprintf("%s+0x%x", name, off)
}

// Demangle returns the readable form of an Itanium or Rust symbol, or name
// unchanged.
func Demangle(name string) string {
	return demangle.Filter(name, demangle.NoParams)
}
