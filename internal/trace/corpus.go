package trace

import "fmt"

// Corpus holds every snapshot of a trace in step order together with the
// block index. Queries never modify it.
type Corpus struct {
	Arch      Arch
	Endian    Endian
	Snapshots []*Snapshot
	Blocks    *BlockIndex
}

// NewCorpus checks that snapshot ids run 0..N-1 in slice order.
func NewCorpus(arch Arch, endian Endian, snapshots []*Snapshot, blocks *BlockIndex) (*Corpus, error) {
	for i, s := range snapshots {
		if s.ID != i {
			return nil, fmt.Errorf("%w: position %d holds id %d", ErrSequence, i, s.ID)
		}
	}
	if blocks == nil {
		blocks = NewBlockIndex()
	}
	return &Corpus{Arch: arch, Endian: endian, Snapshots: snapshots, Blocks: blocks}, nil
}

// Len is the number of snapshots.
func (c *Corpus) Len() int { return len(c.Snapshots) }

// Snapshot returns the snapshot with the given id.
func (c *Corpus) Snapshot(id int) (*Snapshot, bool) {
	if id < 0 || id >= len(c.Snapshots) {
		return nil, false
	}
	return c.Snapshots[id], true
}

// Block resolves the block that was executing at s.
func (c *Corpus) Block(s *Snapshot) (*Block, bool) {
	return c.Blocks.Resolve(s, c.Arch)
}

// Next returns the snapshot after s; false at the end of the trace.
func (c *Corpus) Next(s *Snapshot) (*Snapshot, bool) {
	return c.Snapshot(s.ID + 1)
}

// Previous returns the snapshot before s; false at the start of the trace.
func (c *Corpus) Previous(s *Snapshot) (*Snapshot, bool) {
	return c.Snapshot(s.ID - 1)
}

func (c *Corpus) NextBlock(s *Snapshot) (*Block, bool) {
	n, ok := c.Next(s)
	if !ok {
		return nil, false
	}
	return c.Block(n)
}

func (c *Corpus) PreviousBlock(s *Snapshot) (*Block, bool) {
	p, ok := c.Previous(s)
	if !ok {
		return nil, false
	}
	return c.Block(p)
}

// ExceptionReturnAfter scans forward from s, s included, for the first
// snapshot carrying an exception return.
func (c *Corpus) ExceptionReturnAfter(s *Snapshot) (*Snapshot, bool) {
	for cur, ok := s, true; ok; cur, ok = c.Next(cur) {
		if cur.Exception != nil && cur.Exception.Type == EventReturn {
			return cur, true
		}
	}
	return nil, false
}

// Stats summarizes a corpus.
type Stats struct {
	Snapshots  int
	Exceptions map[EventType]int
	Addresses  int
	Blocks     int
	Chained    int
	Unresolved int
}

// Stats counts snapshots, events and blocks, and how many snapshots have no
// block at their program counter.
func (c *Corpus) Stats() Stats {
	st := Stats{
		Snapshots:  len(c.Snapshots),
		Exceptions: make(map[EventType]int),
		Addresses:  c.Blocks.Len(),
		Blocks:     c.Blocks.Nodes(),
		Chained:    c.Blocks.Chained(),
	}
	for _, s := range c.Snapshots {
		if s.Exception != nil {
			st.Exceptions[s.Exception.Type]++
		}
		if _, ok := c.Block(s); !ok {
			st.Unresolved++
		}
	}
	return st
}
