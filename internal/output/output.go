// Package output writes parsed trace corpora as JSON or YAML documents and
// reads them back.
package output

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"qemutrace/internal/trace"
)

// Format is a document encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
)

// ParseFormat accepts json, yaml and yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	}
	return "", fmt.Errorf("output: unknown format %q", s)
}

// Ext is the file extension for f, dot included.
func (f Format) Ext() string {
	if f == YAML {
		return ".yaml"
	}
	return ".json"
}

// Document is the serialized form of a corpus: snapshots keyed by id and
// block chains keyed by entry address.
type Document struct {
	Arch      string                  `json:"arch" yaml:"arch" jsonschema:"enum=arm,enum=mips"`
	Endian    string                  `json:"endian" yaml:"endian" jsonschema:"enum=little,enum=big"`
	Snapshots map[int]*trace.Snapshot `json:"snapshots" yaml:"snapshots"`
	Blocks    map[string]*trace.Block `json:"blocks" yaml:"blocks"`
}

// NewDocument captures c. A positive limit keeps the first limit snapshots
// and the first limit block addresses; zero keeps everything.
func NewDocument(c *trace.Corpus, limit int) *Document {
	doc := &Document{
		Arch:      c.Arch.String(),
		Endian:    c.Endian.String(),
		Snapshots: make(map[int]*trace.Snapshot),
		Blocks:    make(map[string]*trace.Block),
	}
	for _, s := range c.Snapshots {
		if limit > 0 && len(doc.Snapshots) == limit {
			break
		}
		doc.Snapshots[s.ID] = s
	}
	for _, addr := range c.Blocks.Addresses() {
		if limit > 0 && len(doc.Blocks) == limit {
			break
		}
		doc.Blocks[addr], _ = c.Blocks.Head(addr)
	}
	return doc
}

// Corpus rebuilds a corpus from the document.
func (d *Document) Corpus() (*trace.Corpus, error) {
	arch, err := trace.ParseArch(d.Arch)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	endian, err := trace.ParseEndian(d.Endian)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	snaps := make([]*trace.Snapshot, 0, len(d.Snapshots))
	for id, s := range d.Snapshots {
		if s.ID != id {
			return nil, fmt.Errorf("output: snapshot keyed %d carries id %d", id, s.ID)
		}
		if s.Registers == nil {
			s.Registers = make(map[string]string)
		}
		snaps = append(snaps, s)
	}
	slices.SortFunc(snaps, func(a, b *trace.Snapshot) int { return cmp.Compare(a.ID, b.ID) })

	// Chains are appended in order of first appearance in the log.
	heads := make([]*trace.Block, 0, len(d.Blocks))
	for addr, b := range d.Blocks {
		if b == nil || trace.NormalizeAddress(b.Entry) != trace.NormalizeAddress(addr) {
			return nil, fmt.Errorf("output: block chain keyed %s has a different entry", addr)
		}
		heads = append(heads, b)
	}
	slices.SortFunc(heads, func(a, b *trace.Block) int { return cmp.Compare(a.FirstLine(), b.FirstLine()) })
	index := trace.NewBlockIndex()
	for _, h := range heads {
		if err := index.AppendChain(h); err != nil {
			return nil, fmt.Errorf("output: %w", err)
		}
	}
	return trace.NewCorpus(arch, endian, snaps, index)
}

// Encode writes doc to w.
func Encode(w io.Writer, doc *Document, f Format) error {
	switch f {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("output: encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("output: encode json: %w", err)
		}
		return nil
	}
}

// Decode reads a document from r.
func Decode(r io.Reader, f Format) (*Document, error) {
	doc := &Document{}
	var err error
	switch f {
	case YAML:
		err = yaml.NewDecoder(r).Decode(doc)
	default:
		err = json.NewDecoder(r).Decode(doc)
	}
	if err != nil {
		return nil, fmt.Errorf("output: decode %s: %w", f, err)
	}
	return doc, nil
}

// WriteFile writes doc to dir/name plus the format's extension and returns
// the path written.
func WriteFile(dir, name string, doc *Document, f Format) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("output: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name+f.Ext())
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("output: create %s: %w", path, err)
	}
	defer file.Close()
	if err := Encode(file, doc, f); err != nil {
		return "", err
	}
	return path, nil
}

// Read loads a document written by WriteFile, choosing the format by extension.
func Read(path string) (*Document, error) {
	f := JSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		f = YAML
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("output: open %s: %w", path, err)
	}
	defer file.Close()
	return Decode(file, f)
}
