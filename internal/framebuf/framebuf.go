// Package framebuf queues decoded units between the decoder and the
// presentation tick, and tells the player when to pause or resume decoding.
package framebuf

import "github.com/llehouerou/ripple/internal/media"

// Mode selects how occupancy is measured.
type Mode int

const (
	// Time measures newest PTS minus oldest PTS, in seconds.
	Time Mode = iota
	// Count measures the number of queued units.
	Count
)

const (
	DefaultHighSeconds = 1.0
	DefaultHighUnits   = 16
)

// Buffer holds audio and video units in arrival order.
type Buffer struct {
	mode  Mode
	high  float64
	units []media.Unit
}

// New creates a buffer. A non-positive high mark selects the mode's default.
func New(mode Mode, high float64) *Buffer {
	if high <= 0 {
		if mode == Count {
			high = DefaultHighUnits
		} else {
			high = DefaultHighSeconds
		}
	}
	return &Buffer{mode: mode, high: high}
}

// Mode returns the occupancy mode.
func (b *Buffer) Mode() Mode { return b.mode }

// High returns the high-water mark.
func (b *Buffer) High() float64 { return b.high }

// Low returns the low-water mark, half the high mark.
func (b *Buffer) Low() float64 { return b.high / 2 }

// Push appends u and reports whether the buffer reached its high mark.
func (b *Buffer) Push(u media.Unit) bool {
	b.units = append(b.units, u)
	return b.AboveHigh()
}

// Head returns the oldest unit without removing it.
func (b *Buffer) Head() (media.Unit, bool) {
	if len(b.units) == 0 {
		return media.Unit{}, false
	}
	return b.units[0], true
}

// Pop removes and returns the oldest unit.
func (b *Buffer) Pop() (media.Unit, bool) {
	if len(b.units) == 0 {
		return media.Unit{}, false
	}
	u := b.units[0]
	b.units[0] = media.Unit{}
	b.units = b.units[1:]
	if len(b.units) == 0 {
		b.units = nil
	}
	return u, true
}

// Len returns the number of queued units.
func (b *Buffer) Len() int { return len(b.units) }

// Clear drops every queued unit.
func (b *Buffer) Clear() {
	clear(b.units)
	b.units = nil
}

// Occupancy returns the current fill level in the buffer's mode.
func (b *Buffer) Occupancy() float64 {
	if b.mode == Count {
		return float64(len(b.units))
	}
	if len(b.units) == 0 {
		return 0
	}
	return b.units[len(b.units)-1].PTS - b.units[0].PTS
}

// AboveHigh reports whether decoding should pause.
func (b *Buffer) AboveHigh() bool {
	return b.Occupancy() >= b.high
}

// BelowLow reports whether decoding should resume.
func (b *Buffer) BelowLow() bool {
	return b.Occupancy() < b.Low()
}
