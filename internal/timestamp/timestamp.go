// Package timestamp implements the periodic timestamp writer: it fires
// almost immediately after start, then on a fixed interval, formatting the
// current local time and appending it to the sink as a single packet.
// Active only in file-backed mode.
package timestamp

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aesdsocket/ringsink/internal/sink"
)

// initialDelay mirrors server/interval.c's 1ms first fire, which stamps
// start-of-file before settling into the steady cadence.
const initialDelay = time.Millisecond

// Task appends a rendered timestamp packet to a Sink on a fixed interval.
type Task struct {
	sink     sink.Sink
	interval time.Duration
	log      *zap.SugaredLogger
	now      func() time.Time
}

// New creates a timestamp task that writes to sink every interval.
func New(s sink.Sink, interval time.Duration, log *zap.SugaredLogger) *Task {
	return &Task{
		sink:     s,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// Run fires once after initialDelay and then every interval until ctx is
// canceled. A single fire's failure is logged and does not stop the task.
func (t *Task) Run(ctx context.Context) error {
	timer := time.NewTimer(initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			t.fire()
			timer.Reset(t.interval)
		}
	}
}

func (t *Task) fire() {
	payload := []byte(t.now().Local().Format("timestamp:2006-01-02 15:04:05\n"))

	t.sink.Lock()
	defer t.sink.Unlock()

	if err := t.sink.Append(payload); err != nil {
		t.log.Errorw("failed to append timestamp", "error", err)
	}
}
