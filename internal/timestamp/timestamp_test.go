package timestamp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aesdsocket/ringsink/internal/sink"
)

func TestRunFiresAtLeastOnceThenStops(t *testing.T) {
	s := sink.NewRingSink(10)
	task := New(s, 50*time.Millisecond, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := task.Run(ctx)
	require.NoError(t, err)

	s.Lock()
	length := s.Length()
	s.Unlock()
	assert.Greater(t, length, uint64(0), "initial near-immediate fire should have appended a timestamp")
}

func TestFireFormatsLocalTimestamp(t *testing.T) {
	s := sink.NewRingSink(10)
	task := New(s, time.Hour, zaptest.NewLogger(t).Sugar())
	task.now = func() time.Time {
		return time.Date(2026, 8, 1, 9, 5, 3, 0, time.Local)
	}

	task.fire()

	s.Lock()
	data, err := s.ReadAt(0, 64)
	s.Unlock()
	require.NoError(t, err)
	assert.Equal(t, "timestamp:2026-08-01 09:05:03\n", string(data))
}
