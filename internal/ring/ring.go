// Package ring implements the bounded command log: a fixed-capacity FIFO of
// write-commands addressed both by linear byte offset and by
// (command-index, intra-command-offset) pairs.
//
// Ring is a pure data structure. It performs no I/O and holds no lock of its
// own — callers (the sink package) serialize access to a shared Ring under
// one external mutex, as spec'd for the original aesd-circular-buffer.
package ring

import "fmt"

// Command is one immutable, newline-terminated write appended to the ring.
// Once inserted into a Ring slot it is owned by that slot until eviction.
type Command struct {
	Payload []byte
}

// Len returns the command's byte length.
func (c *Command) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Payload)
}

// Ring is a fixed-capacity ring of at most Capacity commands.
type Ring struct {
	capacity   int
	slots      []*Command
	head       int // oldest occupied slot, the read-out position
	tail       int // next-write position
	full       bool
	totalBytes uint64
}

// New creates an empty ring with room for capacity commands.
func New(capacity int) *Ring {
	if capacity <= 0 {
		panic(fmt.Sprintf("ring: capacity must be positive, got %d", capacity))
	}
	return &Ring{
		capacity: capacity,
		slots:    make([]*Command, capacity),
	}
}

// Capacity returns the maximum number of commands the ring can hold.
func (r *Ring) Capacity() int {
	return r.capacity
}

// Occupancy returns the number of commands currently held.
func (r *Ring) Occupancy() int {
	if r.full {
		return r.capacity
	}
	occ := r.tail - r.head
	if occ < 0 {
		occ += r.capacity
	}
	return occ
}

// TotalBytes returns the sum of lengths of all occupied slots.
func (r *Ring) TotalBytes() uint64 {
	return r.totalBytes
}

// Insert places cmd at the tail slot, advancing tail by one modulo capacity.
// If the ring was already full, the slot's previous occupant is evicted and
// returned so the caller can release it; head advances to the new tail.
func (r *Ring) Insert(cmd *Command) (evicted *Command) {
	if r.full {
		evicted = r.slots[r.tail]
		r.totalBytes -= uint64(evicted.Len())
	}

	r.slots[r.tail] = cmd
	r.totalBytes += uint64(cmd.Len())
	r.tail = (r.tail + 1) % r.capacity

	if r.full {
		r.head = r.tail
	} else if r.tail == r.head {
		r.full = true
	}

	return evicted
}

// FindByLinearOffset walks occupied slots starting at head, subtracting each
// slot's length from p until p lands within a slot. It returns that slot and
// the residual offset within it. It returns ok=false at or past end of log.
func (r *Ring) FindByLinearOffset(p uint64) (cmd *Command, offsetInSlot int, ok bool) {
	if r.Occupancy() == 0 {
		return nil, 0, false
	}

	idx := r.head
	for {
		slot := r.slots[idx]
		slotLen := uint64(slot.Len())
		if p < slotLen {
			return slot, int(p), true
		}
		p -= slotLen

		idx = (idx + 1) % r.capacity
		if idx == r.tail && !r.full {
			return nil, 0, false
		}
		// After wrapping once past tail for a full ring, stop once we've
		// walked a full cycle back to head with nothing left to subtract.
		if idx == r.head && r.full {
			return nil, 0, false
		}
	}
}

// Translate converts a (command-index, intra-command-offset) pair, both
// measured from head, into a linear offset. It fails if cmdIndex is out of
// the currently occupied range or cmdOffset is out of that command's range.
func (r *Ring) Translate(cmdIndex, cmdOffset int) (linearOffset uint64, ok bool) {
	occ := r.Occupancy()
	if cmdIndex < 0 || cmdIndex >= occ {
		return 0, false
	}

	slotIdx := (r.head + cmdIndex) % r.capacity
	slot := r.slots[slotIdx]
	if cmdOffset < 0 || cmdOffset >= slot.Len() {
		return 0, false
	}

	var linear uint64
	idx := r.head
	for i := 0; i < cmdIndex; i++ {
		linear += uint64(r.slots[idx].Len())
		idx = (idx + 1) % r.capacity
	}
	return linear + uint64(cmdOffset), true
}

// IndexedCommand pairs a command with its index from head, as yielded by
// IterOccupied.
type IndexedCommand struct {
	Index int
	Cmd   *Command
}

// IterOccupied returns every occupied slot in head-to-tail order, paired
// with its index from head. Used for teardown release and by Translate's
// callers that need the full occupied set.
func (r *Ring) IterOccupied() []IndexedCommand {
	occ := r.Occupancy()
	out := make([]IndexedCommand, 0, occ)
	idx := r.head
	for i := 0; i < occ; i++ {
		out = append(out, IndexedCommand{Index: i, Cmd: r.slots[idx]})
		idx = (idx + 1) % r.capacity
	}
	return out
}
