package sink

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingSinkAppendAndReadAtSingleCommand(t *testing.T) {
	s := NewRingSink(10)

	require.NoError(t, s.Append([]byte("hello\n")))
	assert.Equal(t, uint64(6), s.Length())

	data, err := s.ReadAt(0, 100)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	data, err = s.ReadAt(6, 100)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestRingSinkReadAtNeverCrossesCommandBoundary(t *testing.T) {
	s := NewRingSink(10)
	require.NoError(t, s.Append([]byte("one\n")))
	require.NoError(t, s.Append([]byte("two\n")))

	data, err := s.ReadAt(0, 100)
	require.NoError(t, err)
	assert.Equal(t, "one\n", string(data), "a single ReadAt call must not cross into the next command")

	data, err = s.ReadAt(4, 100)
	require.NoError(t, err)
	assert.Equal(t, "two\n", string(data))
}

func TestRingSinkAppendRejectsEmptyPacket(t *testing.T) {
	s := NewRingSink(10)
	assert.ErrorIs(t, s.Append(nil), ErrEmptyPacket)
}

func TestRingSinkSeekToValidAndOutOfRange(t *testing.T) {
	s := NewRingSink(10)
	require.NoError(t, s.Append([]byte("aaa\n")))
	require.NoError(t, s.Append([]byte("bbbb\n")))

	linear, err := s.SeekTo(1, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(4+2), linear)

	data, err := s.ReadAt(linear, 100)
	require.NoError(t, err)
	assert.Equal(t, "bb\n", string(data))

	_, err = s.SeekTo(5, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestFileSinkAppendAndReadAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sinkdata")
	s := NewFileSink(path)

	require.NoError(t, s.Append([]byte("one\n")))
	require.NoError(t, s.Append([]byte("two\n")))
	assert.Equal(t, uint64(8), s.Length())

	data, err := s.ReadAt(0, 100)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))

	require.NoError(t, s.Remove())
	assert.Equal(t, uint64(0), s.Length())
}

func TestFileSinkSeekToUnsupported(t *testing.T) {
	s := NewFileSink(filepath.Join(t.TempDir(), "sinkdata"))
	_, err := s.SeekTo(0, 0)
	assert.ErrorIs(t, err, ErrSeekUnsupported)
}
