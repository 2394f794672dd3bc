package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/charmbracelet/log"
)

// Mode selects how a Source produces snapshots.
type Mode int

const (
	// Eager materializes every snapshot before answering queries.
	Eager Mode = iota
	// Streaming yields snapshots once, as their records close, and keeps none.
	Streaming
)

func (m Mode) String() string {
	if m == Streaming {
		return "streaming"
	}
	return "eager"
}

// ParseMode accepts eager/plain and streaming/generator.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "eager", "plain":
		return Eager, nil
	case "streaming", "stream", "generator", "lazy":
		return Streaming, nil
	}
	return 0, fmt.Errorf("trace: unknown mode %q", s)
}

// Option configures parsers and sources.
type Option func(*options)

type options struct {
	logger *log.Logger
	mode   Mode
}

// WithLogger routes parse warnings to l.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMode selects eager or streaming snapshot production.
func WithMode(m Mode) Option {
	return func(o *options) { o.mode = m }
}

func buildOptions(opts []Option) options {
	o := options{mode: Eager}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}
	return o
}

// maxLineLength bounds a single log line.
const maxLineLength = 1 << 20

func eachLine(r io.Reader, fn func(string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for sc.Scan() {
		if err := fn(sc.Text()); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Source is an opened trace log. The architecture and endianness are given by
// the caller because the log does not describe itself.
type Source struct {
	Arch   Arch
	Endian Endian
	Path   string

	opts     []Option
	o        options
	blocks   *BlockIndex
	corpus   *Corpus
	streamed bool
	dropped  int
}

// Open prepares the log at path. Nothing is parsed until a query needs it.
func Open(arch Arch, endian Endian, path string, opts ...Option) (*Source, error) {
	if _, err := newStepDecoder(arch); err != nil {
		return nil, err
	}
	if endian != Little && endian != Big {
		return nil, ErrUnknownEndian
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("open trace: %s is a directory", path)
	}
	return &Source{Arch: arch, Endian: endian, Path: path, opts: opts, o: buildOptions(opts)}, nil
}

// Mode reports how snapshots are produced.
func (src *Source) Mode() Mode { return src.o.mode }

// Dropped is the number of malformed or truncated records skipped so far.
func (src *Source) Dropped() int { return src.dropped }

func (src *Source) read(fn func(string) error) error {
	f, err := os.Open(src.Path)
	if err != nil {
		return fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()
	if err := eachLine(f, fn); err != nil {
		return fmt.Errorf("read %s: %w", src.Path, err)
	}
	return nil
}

// Blocks parses the block index on first use. It is built in full in both
// modes since resolution needs every chain.
func (src *Source) Blocks() (*BlockIndex, error) {
	if src.blocks != nil {
		return src.blocks, nil
	}
	p := NewBlockParser(src.opts...)
	err := src.read(func(line string) error {
		p.Feed(line)
		return nil
	})
	if err != nil {
		return nil, err
	}
	src.blocks = p.Finish()
	src.dropped += p.Dropped()
	src.o.logger.Debug("loaded blocks", "addresses", src.blocks.Len(), "nodes", src.blocks.Nodes())
	return src.blocks, nil
}

// Corpus parses the whole log. It fails with ErrStreaming for a streaming source.
func (src *Source) Corpus() (*Corpus, error) {
	if src.o.mode == Streaming {
		return nil, ErrStreaming
	}
	if src.corpus != nil {
		return src.corpus, nil
	}
	blocks, err := src.Blocks()
	if err != nil {
		return nil, err
	}
	p, err := NewSnapshotParser(src.Arch, src.opts...)
	if err != nil {
		return nil, err
	}
	var snaps []*Snapshot
	err = src.read(func(line string) error {
		s, err := p.Feed(line)
		if s != nil {
			snaps = append(snaps, s)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if s := p.Finish(); s != nil {
		snaps = append(snaps, s)
	}
	src.dropped += p.Dropped()
	c, err := NewCorpus(src.Arch, src.Endian, snaps, blocks)
	if err != nil {
		return nil, err
	}
	src.o.logger.Debug("loaded snapshots", "count", len(snaps), "dropped", p.Dropped())
	src.corpus = c
	return c, nil
}

// Snapshots yields every snapshot in step order. A streaming source can be
// iterated once; a second pass yields ErrConsumed. Iteration stops after the
// first error.
func (src *Source) Snapshots() iter.Seq2[*Snapshot, error] {
	return func(yield func(*Snapshot, error) bool) {
		if src.o.mode == Eager {
			c, err := src.Corpus()
			if err != nil {
				yield(nil, err)
				return
			}
			for _, s := range c.Snapshots {
				if !yield(s, nil) {
					return
				}
			}
			return
		}

		if src.streamed {
			yield(nil, ErrConsumed)
			return
		}
		src.streamed = true
		p, err := NewSnapshotParser(src.Arch, src.opts...)
		if err != nil {
			yield(nil, err)
			return
		}
		errStop := errors.New("stop")
		err = src.read(func(line string) error {
			s, err := p.Feed(line)
			if s != nil && !yield(s, nil) {
				return errStop
			}
			return err
		})
		src.dropped += p.Dropped()
		switch {
		case errors.Is(err, errStop):
			return
		case err != nil:
			yield(nil, err)
			return
		}
		if s := p.Finish(); s != nil {
			yield(s, nil)
		}
	}
}

// Snapshot looks up a snapshot by id. Streaming sources keep no history and
// return ErrStreaming.
func (src *Source) Snapshot(id int) (*Snapshot, bool, error) {
	c, err := src.Corpus()
	if err != nil {
		return nil, false, err
	}
	s, ok := c.Snapshot(id)
	return s, ok, nil
}

// Resolve finds the block executing at s. It works in both modes.
func (src *Source) Resolve(s *Snapshot) (*Block, bool, error) {
	blocks, err := src.Blocks()
	if err != nil {
		return nil, false, err
	}
	b, ok := blocks.Resolve(s, src.Arch)
	return b, ok, nil
}
