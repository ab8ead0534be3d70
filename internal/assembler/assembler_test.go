package assembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedYieldsOnSingleChunkWithNewline(t *testing.T) {
	a := New()

	packet, found := a.Feed([]byte("hello\n"))
	require.True(t, found)
	assert.Equal(t, "hello\n", string(packet))
	assert.Equal(t, 0, a.Pending())
}

func TestFeedAccumulatesAcrossChunksWithoutNewline(t *testing.T) {
	a := New()

	_, found := a.Feed([]byte("hel"))
	assert.False(t, found)

	packet, found := a.Feed([]byte("lo\n"))
	require.True(t, found)
	assert.Equal(t, "hello\n", string(packet))
}

func TestFeedPreservesResidualBytesAfterNewline(t *testing.T) {
	a := New()

	packet, found := a.Feed([]byte("one\ntwo"))
	require.True(t, found)
	assert.Equal(t, "one\n", string(packet))
	assert.Equal(t, 3, a.Pending())

	packet, found = a.Feed([]byte("\n"))
	require.True(t, found)
	assert.Equal(t, "two\n", string(packet))
}

func TestFeedGrowsBeyondBlockSize(t *testing.T) {
	a := NewWithBlockSize(4)

	long := make([]byte, 10)
	for i := range long {
		long[i] = 'x'
	}
	_, found := a.Feed(long)
	assert.False(t, found)
	assert.Equal(t, 10, a.Pending())

	packet, found := a.Feed([]byte("\n"))
	require.True(t, found)
	assert.Equal(t, 11, len(packet))
}

func TestResetDiscardsPartialPacket(t *testing.T) {
	a := New()

	_, found := a.Feed([]byte("partial"))
	assert.False(t, found)
	require.Equal(t, 7, a.Pending())

	a.Reset()
	assert.Equal(t, 0, a.Pending())
}
