package sink

import (
	"io"
	"os"
	"sync"
)

// FileSink is the append-only file backend. It has no command boundaries:
// Append concatenates raw bytes onto the file and SeekTo is unsupported,
// since there is nothing to address by command index.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a file-backed sink writing to path. The file is
// created on first Append if it does not already exist.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Lock()   { s.mu.Lock() }
func (s *FileSink) Unlock() { s.mu.Unlock() }

func (s *FileSink) Append(payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPacket
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(payload)
	return err
}

func (s *FileSink) Length() uint64 {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0
	}
	return uint64(info.Size())
}

func (s *FileSink) ReadAt(p uint64, max int) ([]byte, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, max)
	n, err := f.ReadAt(buf, int64(p))
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}

func (s *FileSink) SeekTo(cmdIndex, cmdOffset uint32) (uint64, error) {
	return 0, ErrSeekUnsupported
}

// Remove deletes the backing file. Called on clean shutdown in file-backed
// mode so a restart starts from an empty log.
func (s *FileSink) Remove() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

var _ Sink = (*FileSink)(nil)
