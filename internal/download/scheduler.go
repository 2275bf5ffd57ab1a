// Package download paces chunked fetches of a sized resource and filters
// out responses that a newer request has superseded.
package download

import (
	"time"

	"github.com/llehouerou/ripple/internal/source"
)

// DefaultInterval paces fetches before the byte rate is known.
const DefaultInterval = 200 * time.Millisecond

// DefaultRateCoef is the ratio between fetch speed and playback byte rate.
const DefaultRateCoef = 2.0

// Status explains why Next produced no range.
type Status int

const (
	StatusOK Status = iota
	StatusBusy
	StatusEndOfResource
	StatusUnbounded
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBusy:
		return "busy"
	case StatusEndOfResource:
		return "end of resource"
	case StatusUnbounded:
		return "unbounded"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Range is one chunk request. End is inclusive.
type Range struct {
	Start int64
	End   int64
	Seq   int64
}

// Len returns the number of bytes the range covers.
func (r Range) Len() int64 {
	return r.End - r.Start + 1
}

// Scheduler is not safe for concurrent use; the player goroutine owns it.
//
// The sequence counter only ever grows, so a response issued for an earlier
// session or before a seek can never match again. At most one fetch is
// outstanding: it stays outstanding until the response carrying its sequence
// number is accepted, whatever happens to the pacing timer meanwhile.
type Scheduler struct {
	base     time.Duration
	seq      int64
	inflight bool
	inSeq    int64
	running  bool
	urgent   bool
	interval time.Duration
}

// New returns a stopped scheduler using DefaultInterval.
func New() *Scheduler {
	return NewWithInterval(DefaultInterval)
}

// NewWithInterval returns a stopped scheduler pacing at d until Pace is
// called.
func NewWithInterval(d time.Duration) *Scheduler {
	if d <= 0 {
		d = DefaultInterval
	}
	return &Scheduler{base: d, interval: d}
}

// Start arms pacing. A fetch already in flight stays current.
func (s *Scheduler) Start() {
	s.running = true
}

// Stop disarms pacing. A dispatched fetch still completes and is accepted
// if its sequence number is current.
func (s *Scheduler) Stop() {
	s.running = false
}

// Invalidate makes every outstanding response stale without arming pacing.
func (s *Scheduler) Invalidate() {
	s.seq++
}

// Reset prepares the scheduler for a new session. The sequence counter is
// kept so that late responses from the old session stay stale.
func (s *Scheduler) Reset() {
	s.seq++
	s.running = false
	s.urgent = false
	s.inflight = false
	s.interval = s.base
}

// Running reports whether the pacing timer should be ticking.
func (s *Scheduler) Running() bool { return s.running }

// Seq returns the current sequence number.
func (s *Scheduler) Seq() int64 { return s.seq }

// InFlight reports whether a fetch is outstanding.
func (s *Scheduler) InFlight() bool { return s.inflight }

// Interval returns the pacing interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// SetUrgent toggles urgent mode, in which each accepted response is followed
// by the next request without waiting for the pacing timer.
func (s *Scheduler) SetUrgent(urgent bool) { s.urgent = urgent }

// Urgent reports whether urgent mode is on.
func (s *Scheduler) Urgent() bool { return s.urgent }

// Next returns the next range to fetch and marks it in flight.
//
// Reaching the end of the resource disarms pacing; it is not an error.
func (s *Scheduler) Next(d *source.Descriptor) (Range, Status) {
	if d.IsUnbounded() {
		return Range{}, StatusUnbounded
	}
	if s.inflight {
		return Range{}, StatusBusy
	}
	if d.Offset >= d.Size {
		s.running = false
		return Range{}, StatusEndOfResource
	}

	chunk := int64(d.ChunkSize)
	if chunk <= 0 {
		chunk = source.DefaultChunkSize
	}
	r := Range{
		Start: d.Offset,
		End:   min(d.Offset+chunk-1, d.Size-1),
		Seq:   s.seq,
	}
	s.inflight = true
	s.inSeq = r.Seq
	return r, StatusOK
}

// Accept acknowledges a response. It reports whether the response belongs to
// the current sequence; stale responses must be dropped by the caller.
func (s *Scheduler) Accept(seq int64) bool {
	if s.inflight && seq == s.inSeq {
		s.inflight = false
	}
	return seq == s.seq
}

// Fail acknowledges a failed fetch so a later tick may retry.
func (s *Scheduler) Fail(seq int64) {
	if s.inflight && seq == s.inSeq {
		s.inflight = false
	}
}

// Pace derives the fetch interval from the resource size and duration. It
// returns the playback byte rate (bytes per second). Pacing is unchanged when
// the duration is unknown.
func (s *Scheduler) Pace(size, durationMs int64, coef float64, chunkSize int) float64 {
	if size <= 0 || durationMs <= 0 || chunkSize <= 0 {
		return 0
	}
	if coef <= 0 {
		coef = DefaultRateCoef
	}
	byteRate := float64(size) * 1000 / float64(durationMs)
	target := coef * byteRate
	chunksPerSecond := target / float64(chunkSize)
	ms := 1000 / chunksPerSecond
	s.interval = max(time.Duration(ms*float64(time.Millisecond)), time.Millisecond)
	return byteRate
}
