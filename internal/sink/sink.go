// Package sink wraps the command ring (or, in file-backed mode, an
// append-only file) behind a single set of operations shared by the
// connection worker and the periodic timestamp task: append, read_at,
// seek_to and length. All mutation and every read that must observe a
// coherent length are serialized under one sink-wide lock.
package sink

import (
	"errors"
	"sync"

	"github.com/aesdsocket/ringsink/internal/ring"
)

// ErrEmptyPacket is returned by Append when handed a zero-length payload.
// The assembler never produces these; a Sink still refuses them so an
// implementation bug surfaces at the boundary instead of corrupting ring
// bookkeeping.
var ErrEmptyPacket = errors.New("sink: refusing to append an empty packet")

// ErrSeekUnsupported is returned by backends that have no addressable
// command boundaries (the file backend: a plain byte stream has no
// commands to seek between).
var ErrSeekUnsupported = errors.New("sink: seek_to is not supported by this backend")

// ErrOutOfRange is returned by SeekTo when the indices are well-formed but
// do not address an occupied command / valid byte within it.
var ErrOutOfRange = errors.New("sink: seek_to indices out of range")

// Sink is the backend-agnostic contract shared by the ring and file
// backends. Every method requires the caller to hold the lock obtained via
// Lock/Unlock; Sink itself performs no internal locking so that a worker
// can compose Append and ReadAt atomically with respect to other
// appenders.
type Sink interface {
	sync.Locker

	// Append inserts one complete, newline-terminated packet. RingSink
	// never partially commits: the payload is first copied into an owned
	// buffer, then committed to the ring, so a failure before commit
	// leaves prior state unchanged. FileSink writes the payload directly
	// to its backing file without such a copy.
	Append(payload []byte) error

	// Length returns the total byte length of the log.
	Length() uint64

	// ReadAt returns up to max bytes starting at linear offset p. RingSink
	// draws them from a single command only; FileSink has no command
	// boundaries and may return bytes of several packets in one call. It
	// returns an empty slice at or past end of log.
	ReadAt(p uint64, max int) ([]byte, error)

	// SeekTo translates (cmdIndex, cmdOffset) into a linear offset.
	SeekTo(cmdIndex, cmdOffset uint32) (uint64, error)
}

// RingSink is the in-process ring backend: a fixed-capacity FIFO of
// commands, addressed both linearly and by (index, offset).
type RingSink struct {
	mu   sync.Mutex
	ring *ring.Ring
}

// NewRingSink creates a ring-backed sink with the given command capacity.
func NewRingSink(capacity int) *RingSink {
	return &RingSink{ring: ring.New(capacity)}
}

func (s *RingSink) Lock()   { s.mu.Lock() }
func (s *RingSink) Unlock() { s.mu.Unlock() }

// Append copies payload into an owned buffer before committing it to the
// ring, so that the ring is only ever mutated with data that is fully in
// hand. Any payload evicted to make room is released (left for the
// garbage collector) only after the new entry is committed.
func (s *RingSink) Append(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPacket
	}

	owned := make([]byte, len(payload))
	copy(owned, payload)

	evicted := s.ring.Insert(&ring.Command{Payload: owned})
	_ = evicted // released by dropping the last reference; nothing further to free in Go
	return nil
}

func (s *RingSink) Length() uint64 {
	return s.ring.TotalBytes()
}

func (s *RingSink) ReadAt(p uint64, max int) ([]byte, error) {
	cmd, offset, ok := s.ring.FindByLinearOffset(p)
	if !ok {
		return nil, nil
	}

	available := cmd.Len() - offset
	n := available
	if max < n {
		n = max
	}
	if n < 0 {
		n = 0
	}
	return cmd.Payload[offset : offset+n], nil
}

func (s *RingSink) SeekTo(cmdIndex, cmdOffset uint32) (uint64, error) {
	linear, ok := s.ring.Translate(int(cmdIndex), int(cmdOffset))
	if !ok {
		return 0, ErrOutOfRange
	}
	return linear, nil
}

// Release returns every payload currently held by the ring, in head order,
// for explicit teardown bookkeeping. Go's GC reclaims the memory
// regardless; this exists so callers that want to log or account for the
// final contents can do so.
func (s *RingSink) Release() []ring.IndexedCommand {
	return s.ring.IterOccupied()
}

var _ Sink = (*RingSink)(nil)
