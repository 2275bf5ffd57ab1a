package download

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/ripple/internal/source"
)

func sized(size int64, chunk int) *source.Descriptor {
	return &source.Descriptor{URL: "http://x/video.mp4", Size: size, ChunkSize: chunk}
}

func TestNext_ChunkBounds(t *testing.T) {
	sizes := []int64{1, 100, 65535, 65536, 65537, 10_000_000}
	for _, size := range sizes {
		d := sized(size, 65536)
		s := New()
		s.Start()

		var total int64
		for {
			r, st := s.Next(d)
			if st == StatusEndOfResource {
				break
			}
			require.Equal(t, StatusOK, st)
			assert.LessOrEqual(t, r.Len(), int64(65536))
			assert.LessOrEqual(t, r.End, size-1)
			assert.Equal(t, d.Offset, r.Start)
			total += r.Len()

			require.True(t, s.Accept(r.Seq))
			d.Advance(r.End)
		}
		assert.Equal(t, size, total)
		assert.False(t, s.Running(), "end of resource disarms pacing")
	}
}

func TestNext_SerializesFetches(t *testing.T) {
	d := sized(1000, 100)
	s := New()
	s.Start()

	r, st := s.Next(d)
	require.Equal(t, StatusOK, st)

	_, st = s.Next(d)
	assert.Equal(t, StatusBusy, st)

	// Stopping the timer does not open a second concurrent fetch.
	s.Stop()
	s.Invalidate()
	s.Start()
	_, st = s.Next(d)
	assert.Equal(t, StatusBusy, st)

	// The old response is stale but still clears the in-flight marker.
	assert.False(t, s.Accept(r.Seq))
	assert.False(t, s.InFlight())
	_, st = s.Next(d)
	assert.Equal(t, StatusOK, st)
}

func TestNext_Unbounded(t *testing.T) {
	s := New()
	s.Start()
	_, st := s.Next(sized(source.Unbounded, 100))
	assert.Equal(t, StatusUnbounded, st)
}

func TestAccept_StaleAfterSeek(t *testing.T) {
	s := New()
	for range 5 {
		s.Invalidate()
	}
	s.Start()
	require.Equal(t, int64(5), s.Seq())

	d := sized(10_000_000, 65536)
	r, _ := s.Next(d)
	require.Equal(t, int64(5), r.Seq)

	// Seek.
	s.Stop()
	s.Invalidate()
	require.Equal(t, int64(6), s.Seq())

	assert.False(t, s.Accept(5))
	assert.Zero(t, d.Offset)
}

func TestStart_KeepsInFlightFetchCurrent(t *testing.T) {
	d := sized(10_000_000, 65536)
	s := New()
	r, st := s.Next(d)
	require.Equal(t, StatusOK, st)

	// Pacing armed once the decoder opens; the header fetch still counts.
	s.Start()
	assert.Equal(t, r.Seq, s.Seq())
	assert.True(t, s.Accept(r.Seq))
}

func TestFail_AllowsRetry(t *testing.T) {
	d := sized(1000, 100)
	s := New()
	s.Start()

	r, _ := s.Next(d)
	s.Fail(r.Seq)

	r2, st := s.Next(d)
	require.Equal(t, StatusOK, st)
	assert.Equal(t, r.Start, r2.Start)
}

func TestReset_KeepsCounterMonotonic(t *testing.T) {
	s := New()
	s.Start()
	before := s.Seq()
	s.SetUrgent(true)

	s.Reset()
	assert.Greater(t, s.Seq(), before)
	assert.False(t, s.Urgent())
	assert.False(t, s.Running())
	assert.Equal(t, DefaultInterval, s.Interval())
}

func TestPace(t *testing.T) {
	s := New()
	// 10 MB over 60 s: byte rate 166666 B/s, target 333333 B/s, ~5.09 chunks/s.
	rate := s.Pace(10_000_000, 60_000, 2.0, 65536)
	assert.InDelta(t, 166666.67, rate, 0.01)
	assert.InDelta(t, float64(196608*time.Microsecond), float64(s.Interval()), float64(time.Millisecond))

	// Unknown duration leaves pacing untouched.
	s2 := New()
	assert.Zero(t, s2.Pace(1000, 0, 2.0, 100))
	assert.Equal(t, DefaultInterval, s2.Interval())
}

func TestNewWithInterval_ResetRestoresBase(t *testing.T) {
	s := NewWithInterval(50 * time.Millisecond)
	s.Pace(10_000_000, 60_000, 2.0, 65536)
	require.NotEqual(t, 50*time.Millisecond, s.Interval())

	s.Reset()
	assert.Equal(t, 50*time.Millisecond, s.Interval())

	assert.Equal(t, DefaultInterval, NewWithInterval(0).Interval())
}
