package indexer

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks in the range.
func (r BlockRange) Len() uint64 {
	return r.To - r.From + 1
}

// Cursor tracks the last fully processed block and hands out the next
// unprocessed range. It is owned by a single poller and is not safe for
// concurrent use.
type Cursor struct {
	last     uint64
	maxRange uint64
}

// NewCursor starts a cursor at lastProcessed. maxRange caps the number of
// blocks returned by NextRange; zero means unbounded.
func NewCursor(lastProcessed, maxRange uint64) *Cursor {
	return &Cursor{last: lastProcessed, maxRange: maxRange}
}

// Last returns the last processed block.
func (c *Cursor) Last() uint64 {
	return c.last
}

// NextRange returns the blocks after the cursor up to head, or false when
// there is nothing new.
func (c *Cursor) NextRange(head uint64) (BlockRange, bool) {
	if head <= c.last {
		return BlockRange{}, false
	}
	r := BlockRange{From: c.last + 1, To: head}
	if c.maxRange > 0 && r.Len() > c.maxRange {
		r.To = r.From + c.maxRange - 1
	}
	return r, true
}

// Advance marks every block up to and including to as processed.
func (c *Cursor) Advance(to uint64) error {
	if to < c.last {
		return fmt.Errorf("cursor cannot move backwards: %d < %d", to, c.last)
	}
	c.last = to
	return nil
}
