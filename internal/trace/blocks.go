package trace

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// BlockIndex maps entry addresses to chains of block emissions.
type BlockIndex struct {
	heads map[string]*Block
	tails map[string]*Block
	order []string
	nodes int
}

// NewBlockIndex returns an empty index.
func NewBlockIndex() *BlockIndex {
	return &BlockIndex{
		heads: make(map[string]*Block),
		tails: make(map[string]*Block),
	}
}

// Append links b at the tail of the chain for b.Entry. A chain only grows in
// log order, so b must start after the current tail ends.
func (x *BlockIndex) Append(b *Block) error {
	b.Next = nil
	tail, ok := x.tails[b.Entry]
	if !ok {
		x.heads[b.Entry] = b
		x.tails[b.Entry] = b
		x.order = append(x.order, b.Entry)
		x.nodes++
		return nil
	}
	if b.FirstLine() <= tail.LastLine() {
		return fmt.Errorf("%w: block at %s line %d overlaps tail ending at line %d",
			ErrChainOrder, b.Entry, b.FirstLine(), tail.LastLine())
	}
	tail.Next = b
	x.tails[b.Entry] = b
	x.nodes++
	return nil
}

// AppendChain appends every node of a chain, detaching them first.
func (x *BlockIndex) AppendChain(head *Block) error {
	for n := head; n != nil; {
		next := n.Next
		if err := x.Append(n); err != nil {
			return err
		}
		n = next
	}
	return nil
}

// Head returns the first emission at addr.
func (x *BlockIndex) Head(addr string) (*Block, bool) {
	b, ok := x.heads[NormalizeAddress(addr)]
	return b, ok
}

// Addresses lists entry addresses in the order they first appeared.
func (x *BlockIndex) Addresses() []string {
	out := make([]string, len(x.order))
	copy(out, x.order)
	return out
}

// Len is the number of distinct entry addresses.
func (x *BlockIndex) Len() int { return len(x.heads) }

// Nodes is the number of block emissions across all chains.
func (x *BlockIndex) Nodes() int { return x.nodes }

// Chained counts the addresses emitted more than once.
func (x *BlockIndex) Chained() int {
	n := 0
	for _, b := range x.heads {
		if b.Chained() {
			n++
		}
	}
	return n
}

// Resolve finds the emission that was executing when s was dumped: the last
// node at the snapshot's program counter whose instructions end at or before
// the snapshot's line, or the head if none does.
func (x *BlockIndex) Resolve(s *Snapshot, arch Arch) (*Block, bool) {
	pc, ok := s.PC(arch)
	if !ok {
		return nil, false
	}
	node, ok := x.heads[pc]
	if !ok {
		return nil, false
	}
	for node.LastLine() < s.Line && node.Next != nil {
		if node.Next.LastLine() > s.Line {
			break
		}
		node = node.Next
	}
	return node, true
}

type blockState int

const (
	blockIdle blockState = iota
	blockAwaitHeader
	blockBody
)

// BlockParser collects "IN:" disassembly blocks from log lines.
//
//	----------------
//	IN: symbol
//	0x00000000:  e3a00000  mov      r0, #0
//	0x00000004:  e59f1004  ldr      r1, [pc, #4]
//	<blank>
type BlockParser struct {
	index   *BlockIndex
	logger  *log.Logger
	st      blockState
	cur     *Block
	line    int
	dropped int
}

// NewBlockParser returns a parser filling a fresh index.
func NewBlockParser(opts ...Option) *BlockParser {
	o := buildOptions(opts)
	return &BlockParser{index: NewBlockIndex(), logger: o.logger}
}

// Feed consumes the next log line and returns the block it closed, if any.
func (p *BlockParser) Feed(line string) *Block {
	p.line++
	switch p.st {
	case blockIdle:
		if IsBlockSeparator(line) {
			p.st = blockAwaitHeader
		}
	case blockAwaitHeader:
		switch {
		case IsBlockHeader(line):
			sym := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), blockHeader))
			p.cur = &Block{Symbol: sym}
			p.st = blockBody
		case IsBlockSeparator(line):
		default:
			// OUT:, OP: and friends share the separator.
			p.st = blockIdle
		}
	case blockBody:
		if IsBlank(line) {
			return p.close()
		}
		if IsBlockSeparator(line) {
			p.logger.Debug("block not terminated by blank line", "line", p.line)
			b := p.close()
			p.st = blockAwaitHeader
			return b
		}
		p.cur.Instructions = append(p.cur.Instructions, parseInstruction(p.line, line))
	}
	return nil
}

func (p *BlockParser) close() *Block {
	b := p.cur
	p.cur = nil
	p.st = blockIdle
	if len(b.Instructions) == 0 {
		p.logger.Debug("skipping empty block", "line", p.line)
		return nil
	}
	b.Entry = b.Instructions[0].Address
	b.Size = len(b.Instructions)
	if err := p.index.Append(b); err != nil {
		p.logger.Warn("dropping block", "err", err)
		p.dropped++
		return nil
	}
	return b
}

// Finish signals end of input; an unterminated block is discarded.
func (p *BlockParser) Finish() *BlockIndex {
	if p.cur != nil {
		p.logger.Debug("discarding truncated block", "line", p.line)
		p.cur = nil
		p.dropped++
	}
	p.st = blockIdle
	return p.index
}

// Index is the index built so far.
func (p *BlockParser) Index() *BlockIndex { return p.index }

// Dropped is the number of blocks discarded.
func (p *BlockParser) Dropped() int { return p.dropped }

// parseInstruction splits "0x00000000:  e3a00000  mov  r0, #0". Lines too
// short to carry a mnemonic keep their raw word and nothing else.
func parseInstruction(ln int, line string) Instruction {
	toks := strings.Fields(line)
	ins := Instruction{Line: ln, Address: NormalizeAddress(toks[0]), Operands: []string{}}
	if len(toks) > 1 {
		ins.Raw = toks[1]
	}
	if len(toks) > 2 {
		ins.Opcode = toks[2]
		ins.Operands = toks[3:]
	}
	return ins
}

// ParseBlocks reads every block from r.
func ParseBlocks(r io.Reader, opts ...Option) (*BlockIndex, error) {
	p := NewBlockParser(opts...)
	err := eachLine(r, func(line string) error {
		p.Feed(line)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.Finish(), nil
}
