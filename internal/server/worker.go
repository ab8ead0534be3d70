package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"

	"github.com/aesdsocket/ringsink/internal/assembler"
	"github.com/aesdsocket/ringsink/internal/sink"
)

// controlPrefix is the exact byte sequence that marks a seek-to control
// packet. A packet shorter than this can never match.
const controlPrefix = "AESDCHAR_IOCSEEKTO:"

// recvChunkSize is how much is read from the socket per Read call; it is
// independent of the assembler's own growth increment.
const recvChunkSize = 512

// worker drives one client's connection through receive → assemble →
// (control or append) → stream-back → close.
type worker struct {
	conn      *net.TCPConn
	sink      sink.Sink
	cfg       Config
	log       *zap.SugaredLogger
	remoteIP  string
	readPos   uint64
	assembler *assembler.Assembler
}

func newWorker(conn *net.TCPConn, s sink.Sink, cfg Config, log *zap.SugaredLogger, remoteIP string) *worker {
	blockSize := cfg.AssemblerBlockSize
	if blockSize <= 0 {
		blockSize = assembler.BlockSize
	}
	return &worker{
		conn:      conn,
		sink:      s,
		cfg:       cfg,
		log:       log,
		remoteIP:  remoteIP,
		assembler: assembler.NewWithBlockSize(blockSize),
	}
}

func (w *worker) run() {
	defer w.closeConn()

	packet, ok := w.receivePacket()
	if !ok {
		return
	}

	// The sink lock is held across append-or-seek and the full readback
	// that follows, mirroring original_source/server/connection.c's mutex
	// scope: no other worker's append can land between this one's append
	// and any byte of its own response.
	w.sink.Lock()
	defer w.sink.Unlock()

	if rest, isControl := cutControlPrefix(packet); isControl {
		if !w.handleControl(rest) {
			return
		}
	} else {
		w.handleAppend(packet)
	}

	w.streamBackLocked()
}

// cutControlPrefix reports whether packet begins with the exact 19-byte
// control prefix, returning the remainder for parsing.
func cutControlPrefix(packet []byte) (rest []byte, ok bool) {
	if len(packet) < len(controlPrefix) || string(packet[:len(controlPrefix)]) != controlPrefix {
		return nil, false
	}
	return packet[len(controlPrefix):], true
}

// receivePacket reads from the socket until the assembler yields exactly
// one complete packet, retrying on transient errors and dropping a partial,
// never-completed packet on EOF instead of appending it.
func (w *worker) receivePacket() ([]byte, bool) {
	buf := make([]byte, recvChunkSize)

	for {
		n, err := w.conn.Read(buf)
		if n > 0 {
			if packet, found := w.assembler.Feed(buf[:n]); found {
				return packet, true
			}
			if max := w.cfg.AssemblerMaxSize; max > 0 && w.assembler.Pending() > max {
				w.log.Errorw("assembler buffer exceeded configured maximum, closing connection",
					"remote", w.remoteIP, "max", max)
				return nil, false
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if w.assembler.Pending() > 0 {
					w.log.Errorw("peer closed with a partial packet buffered, dropping it",
						"remote", w.remoteIP, "pending", w.assembler.Pending())
					w.assembler.Reset()
				}
				return nil, false
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			w.log.Errorw("recv failed", "remote", w.remoteIP, "error", err)
			return nil, false
		}
	}
}

// handleControl parses and executes a recognized seek-to control packet.
// It returns false when the connection should be abandoned without a
// response (malformed format). Caller holds the sink lock.
func (w *worker) handleControl(rest []byte) bool {
	var cmdIndex, cmdOffset uint32
	text := bytes.TrimSuffix(rest, []byte("\n"))
	if _, err := fmt.Sscanf(string(text), "%d,%d", &cmdIndex, &cmdOffset); err != nil {
		w.log.Errorw("seek-to command format invalid", "remote", w.remoteIP, "payload", string(rest))
		return false
	}

	linear, err := w.sink.SeekTo(cmdIndex, cmdOffset)
	if err != nil {
		// Out-of-range or unsupported: pin the cursor past end of log so
		// streamBackLocked sends nothing, giving the client an empty
		// response without propagating the error to it.
		w.readPos = w.sink.Length()
		w.log.Errorw("seek-to indices out of range", "remote", w.remoteIP,
			"cmd_index", cmdIndex, "cmd_offset", cmdOffset, "error", err)
		return true
	}

	w.readPos = linear
	return true
}

// handleAppend commits a data packet to the sink and resets the read
// cursor to the start, so the response is always a full readback of the
// accumulated log. Caller holds the sink lock.
func (w *worker) handleAppend(packet []byte) {
	if err := w.sink.Append(packet); err != nil {
		w.log.Errorw("append failed", "remote", w.remoteIP, "error", err)
	}
	w.readPos = 0
}

// streamChunkSize bounds each read_at/send cycle in streamBackLocked.
const streamChunkSize = 512

// streamBackLocked sends the sink's contents from readPos to end of log,
// retrying partial sends, stopping when read_at returns nothing. The sink
// lock is held by the caller for the entire call, matching
// original_source/server/connection.c's mutex scope.
func (w *worker) streamBackLocked() {
	for {
		data, err := w.sink.ReadAt(w.readPos, streamChunkSize)
		if err != nil {
			w.log.Errorw("read_at failed", "remote", w.remoteIP, "error", err)
			return
		}
		if len(data) == 0 {
			return
		}

		if err := w.sendAll(data); err != nil {
			w.log.Errorw("send failed", "remote", w.remoteIP, "error", err)
			return
		}
		w.readPos += uint64(len(data))
	}
}

func (w *worker) sendAll(data []byte) error {
	for len(data) > 0 {
		n, err := w.conn.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (w *worker) closeConn() {
	w.conn.CloseWrite()
	w.conn.Close()
	w.log.Infow("closed connection", "remote", w.remoteIP)
}
