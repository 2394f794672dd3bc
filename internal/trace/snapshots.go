package trace

import (
	"errors"
	"io"

	"github.com/charmbracelet/log"
)

// status is what a step decoder reports after seeing one line.
type status int

const (
	// recordOpen: the line was consumed and the record expects more lines.
	recordOpen status = iota
	// recordClosed: the line was consumed and completed the record.
	recordClosed
	// recordClosedBefore: the line does not belong to the record, which is
	// complete without it. The caller dispatches the line again.
	recordClosedBefore
)

// stepDecoder is the per-architecture state machine for one register record.
// The first line fed after reset is always the record's opening line.
type stepDecoder interface {
	reset()
	feed(s *Snapshot, line string) (status, error)
	// complete reports whether the open record may be emitted at end of input.
	complete() bool
	state() string
}

func newStepDecoder(arch Arch) (stepDecoder, error) {
	switch arch {
	case ARM:
		return &armDecoder{}, nil
	case MIPS:
		return &mipsDecoder{}, nil
	}
	return nil, ErrUnknownArch
}

// SnapshotParser turns log lines into register snapshots, one line at a time.
type SnapshotParser struct {
	arch    Arch
	dec     stepDecoder
	logger  *log.Logger
	cur     *Snapshot
	next    int
	line    int
	dropped int
}

// NewSnapshotParser returns a parser for arch. Only WithLogger applies.
func NewSnapshotParser(arch Arch, opts ...Option) (*SnapshotParser, error) {
	dec, err := newStepDecoder(arch)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &SnapshotParser{arch: arch, dec: dec, logger: o.logger}, nil
}

// Feed consumes the next line of the log. It returns the snapshot whose record
// this line closed, if any. Lines are numbered from 1 in call order.
//
// A semantic decode error is returned and the parser must not be used again.
// Structurally malformed records are logged and dropped.
func (p *SnapshotParser) Feed(line string) (*Snapshot, error) {
	p.line++
	return p.feed(p.line, line)
}

func (p *SnapshotParser) feed(ln int, line string) (*Snapshot, error) {
	if p.cur == nil {
		if !IsRegisterStart(p.arch, line) {
			return nil, nil
		}
		p.cur = newSnapshot(p.next, ln)
		p.dec.reset()
	}

	st, err := p.dec.feed(p.cur, line)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Line = ln
		}
		start := p.cur.Line
		p.cur = nil
		if errors.Is(err, ErrSemantic) {
			return nil, err
		}
		p.dropped++
		p.logger.Warn("dropping register record", "start", start, "err", err)
		if ln != start {
			return p.feed(ln, line)
		}
		return nil, nil
	}

	switch st {
	case recordClosed:
		return p.emit(), nil
	case recordClosedBefore:
		s := p.emit()
		if _, err := p.feed(ln, line); err != nil {
			return s, err
		}
		return s, nil
	}
	return nil, nil
}

func (p *SnapshotParser) emit() *Snapshot {
	s := p.cur
	p.cur = nil
	p.next++
	return s
}

// Finish signals end of input. A record that already holds its mode line is
// emitted; anything shorter is discarded.
func (p *SnapshotParser) Finish() *Snapshot {
	if p.cur == nil {
		return nil
	}
	if p.dec.complete() {
		return p.emit()
	}
	p.logger.Debug("discarding truncated register record", "start", p.cur.Line, "state", p.dec.state())
	p.cur = nil
	p.dropped++
	return nil
}

// Emitted is the number of snapshots produced so far.
func (p *SnapshotParser) Emitted() int { return p.next }

// Dropped is the number of records discarded as malformed or truncated.
func (p *SnapshotParser) Dropped() int { return p.dropped }

// ParseSnapshots reads every snapshot of arch from r.
func ParseSnapshots(r io.Reader, arch Arch, opts ...Option) ([]*Snapshot, error) {
	p, err := NewSnapshotParser(arch, opts...)
	if err != nil {
		return nil, err
	}
	var out []*Snapshot
	err = eachLine(r, func(line string) error {
		s, err := p.Feed(line)
		if s != nil {
			out = append(out, s)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if s := p.Finish(); s != nil {
		out = append(out, s)
	}
	return out, nil
}
