package audio

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

var _ beep.Streamer = (*queueStreamer)(nil)

// queueStreamer plays queued frames and fills gaps with silence so the
// speaker keeps pulling while the player rebuffers. Only real frames count
// towards the clock.
type queueStreamer struct {
	mu     sync.Mutex
	frames [][2]float64
	played int64
	closed bool
}

// Stream implements beep.Streamer.
func (q *queueStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, false
	}

	n = copy(samples, q.frames)
	q.frames = q.frames[n:]
	if len(q.frames) == 0 {
		q.frames = nil
	}
	q.played += int64(n)

	clear(samples[n:])
	return len(samples), true
}

// Err implements beep.Streamer.
func (q *queueStreamer) Err() error { return nil }

func (q *queueStreamer) push(frames [][2]float64) {
	q.mu.Lock()
	if !q.closed {
		q.frames = append(q.frames, frames...)
	}
	q.mu.Unlock()
}

// Played returns the number of real frames streamed.
func (q *queueStreamer) Played() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.played
}

// Pending returns the number of frames waiting to be streamed.
func (q *queueStreamer) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

func (q *queueStreamer) close() {
	q.mu.Lock()
	q.closed = true
	q.frames = nil
	q.mu.Unlock()
}
