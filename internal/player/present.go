package player

import (
	"time"

	"github.com/llehouerou/ripple/internal/avsync"
	"github.com/llehouerou/ripple/internal/media"
	"github.com/llehouerou/ripple/internal/metrics"
)

var _ avsync.Presenter = (*presenter)(nil)

// presenter adapts the controller to avsync for one drain pass.
type presenter struct {
	c *Controller
}

// BeforeRelease completes a seek just before the first unit after it goes
// out: fresh audio sink and position updates back on.
func (p presenter) BeforeRelease() {
	c, s := p.c, p.c.s
	if !s.seeking {
		return
	}
	c.restartAudio()
	c.trackT.start(c.opts.TrackInterval)
	s.seeking = false
	c.sched.SetUrgent(false)
	c.log.Debug().Float64("begin", c.av.BeginOffset).Msg("seek completed")
}

func (p presenter) AudioClock() float64 {
	if sink := p.c.s.sink; sink != nil {
		return sink.ClockSeconds()
	}
	return 0
}

func (p presenter) PlayAudio(u media.Unit) {
	c, s := p.c, p.c.s
	if s.unbounded && s.firstAudio {
		s.firstAudio = false
		c.av.BeginOffset = u.PTS
	}
	if s.sink != nil {
		s.sink.Enqueue(u.Payload)
	}
	metrics.IncReleased("audio")
}

func (p presenter) RenderVideo(u media.Unit) {
	s := p.c.s
	s.req.Renderer.Render(u.Payload, s.video.Width, s.video.Height, s.video.YLength(), s.video.UVLength())
	metrics.IncReleased("video")
}

func (c *Controller) displayTick() {
	s := c.s
	if s == nil || c.state != Playing || s.failed {
		return
	}

	if c.frames.Len() > 0 {
		if s.buffering {
			return
		}
		c.av.Drain(c.frames, presenter{c})
		metrics.BufferOccupancy.Set(c.frames.Occupancy())
		if c.s == nil {
			return
		}
	}

	if c.frames.BelowLow() && !s.decoding && s.decoderState == DecoderReady {
		c.startDecoding()
	}

	if c.frames.Len() == 0 {
		switch s.decoderState {
		case DecoderFinished:
			c.finish()
		case DecoderReady:
			// Underrun: presentation waits, decoding keeps filling.
			c.startBuffering()
		}
	}
}

func (c *Controller) finish() {
	c.log.Info().Msg("playback finished")
	c.report(finishedReport())
	c.stop("finished")
}

func (c *Controller) updateTrackTime() {
	s := c.s
	if s == nil || c.state != Playing || s.sink == nil {
		return
	}
	pos := s.sink.ClockSeconds() + c.av.BeginOffset
	s.position = time.Duration(pos * float64(time.Second))
	c.observer.Position(s.position, time.Duration(s.video.DurationMs)*time.Millisecond)
}
