package audio

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"

	"github.com/llehouerou/ripple/internal/media"
)

var (
	speakerMu          sync.Mutex
	speakerInitialized bool
	speakerSampleRate  beep.SampleRate
)

// SpeakerOptions configures the system speaker.
type SpeakerOptions struct {
	SampleRate int           // 0 uses the first stream's rate
	Buffer     time.Duration // speaker buffer length
	Volume     float64       // 0.0-1.0
}

// initSpeaker opens the device once per process; later streams are
// resampled to its rate.
func initSpeaker(rate beep.SampleRate, buffer time.Duration) (beep.SampleRate, error) {
	speakerMu.Lock()
	defer speakerMu.Unlock()
	if speakerInitialized {
		return speakerSampleRate, nil
	}
	if err := speaker.Init(rate, rate.N(buffer)); err != nil {
		return 0, fmt.Errorf("init speaker: %w", err)
	}
	speakerInitialized = true
	speakerSampleRate = rate
	return rate, nil
}

// Speaker plays through the system audio device.
type Speaker struct {
	params media.AudioParams
	queue  *queueStreamer
	ctrl   *beep.Ctrl
	volume *effects.Volume
	log    zerolog.Logger
}

var _ Sink = (*Speaker)(nil)

// NewSpeakerFactory returns a Factory creating speaker sinks.
func NewSpeakerFactory(opts SpeakerOptions, logger zerolog.Logger) Factory {
	if opts.Buffer <= 0 {
		opts.Buffer = 100 * time.Millisecond
	}
	return func(a media.AudioParams) (Sink, error) {
		return NewSpeaker(a, opts, logger)
	}
}

// NewSpeaker starts a sink for a, initializing the device if needed.
func NewSpeaker(a media.AudioParams, opts SpeakerOptions, logger zerolog.Logger) (*Speaker, error) {
	if !a.SampleFormat.Valid() || a.Channels <= 0 || a.SampleRate <= 0 {
		return nil, fmt.Errorf("unsupported audio format %s", a)
	}

	rate := beep.SampleRate(a.SampleRate)
	deviceRate := rate
	if opts.SampleRate > 0 {
		deviceRate = beep.SampleRate(opts.SampleRate)
	}
	deviceRate, err := initSpeaker(deviceRate, opts.Buffer)
	if err != nil {
		return nil, err
	}

	s := &Speaker{params: a, queue: &queueStreamer{}, log: logger}
	var stream beep.Streamer = s.queue
	if rate != deviceRate {
		stream = beep.Resample(4, rate, deviceRate, stream)
	}
	s.ctrl = &beep.Ctrl{Streamer: stream}
	s.volume = &effects.Volume{Streamer: s.ctrl, Base: 2, Volume: levelToVolume(opts.Volume)}

	speaker.Play(s.volume)
	logger.Debug().Stringer("format", a).Int("device_rate", int(deviceRate)).Msg("speaker sink started")
	return s, nil
}

func (s *Speaker) Enqueue(p []byte) {
	s.queue.push(decodePCM(p, s.params))
}

func (s *Speaker) Pause() {
	speaker.Lock()
	s.ctrl.Paused = true
	speaker.Unlock()
}

func (s *Speaker) Resume() {
	speaker.Lock()
	s.ctrl.Paused = false
	speaker.Unlock()
}

// Destroy makes the streamer report exhaustion, which removes it from the
// speaker mixer.
func (s *Speaker) Destroy() {
	s.queue.close()
}

func (s *Speaker) ClockSeconds() float64 {
	return float64(s.queue.Played()) / float64(s.params.SampleRate)
}

// SetVolume sets the level (0.0 to 1.0).
func (s *Speaker) SetVolume(level float64) {
	speaker.Lock()
	s.volume.Volume = levelToVolume(level)
	s.volume.Silent = level <= 0
	speaker.Unlock()
}

// levelToVolume maps a 0.0-1.0 level to beep's base-2 volume:
// 1.0 -> 0, 0.5 -> -1, 0.25 -> -2, 0 -> -10.
func levelToVolume(level float64) float64 {
	if level <= 0 {
		return -10
	}
	if level >= 1 {
		return 0
	}
	return math.Log2(level)
}
