package player

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/ripple/internal/audio"
	"github.com/llehouerou/ripple/internal/config"
	"github.com/llehouerou/ripple/internal/decoder"
	"github.com/llehouerou/ripple/internal/source"
	"github.com/llehouerou/ripple/internal/transport"
)

// Options holds the tuning values of the pipeline.
type Options struct {
	ChunkSize        int
	WaitHeaderBytes  int64
	MaxBufferSeconds float64
	MaxBufferUnits   int // count-based buffer when > 0
	RateCoef         float64
	SeekWaitFactor   float64
	DecodeInterval   time.Duration
	ChunkInterval    time.Duration // pacing until the byte rate is known
	TrackInterval    time.Duration
	DisplayInterval  time.Duration
	DrainPerTick     int
	AccurateSeek     bool
}

// DefaultOptions returns the defaults of the config package.
func DefaultOptions() Options {
	return OptionsFromConfig((&config.Config{}).GetPlayerConfig())
}

// OptionsFromConfig converts a player config section.
func OptionsFromConfig(cfg config.PlayerConfig) Options {
	accurate := true
	if cfg.AccurateSeek != nil {
		accurate = *cfg.AccurateSeek
	}
	return Options{
		ChunkSize:        cfg.ChunkSize,
		WaitHeaderBytes:  cfg.WaitHeaderBytes,
		MaxBufferSeconds: cfg.MaxBufferSeconds,
		MaxBufferUnits:   cfg.MaxBufferUnits,
		RateCoef:         cfg.DownloadRateCoef,
		SeekWaitFactor:   cfg.SeekWaitFactor,
		DecodeInterval:   time.Duration(cfg.DecodeIntervalMs) * time.Millisecond,
		ChunkInterval:    time.Duration(cfg.ChunkIntervalMs) * time.Millisecond,
		TrackInterval:    time.Duration(cfg.TrackIntervalMs) * time.Millisecond,
		DisplayInterval:  time.Second / time.Duration(max(cfg.DisplayFPS, 1)),
		DrainPerTick:     cfg.DrainPerTick,
		AccurateSeek:     accurate,
	}
}

func (o Options) withDefaults() Options {
	d := OptionsFromConfig((&config.Config{}).GetPlayerConfig())
	if o.ChunkSize <= 0 {
		o.ChunkSize = source.DefaultChunkSize
	}
	if o.WaitHeaderBytes <= 0 {
		o.WaitHeaderBytes = d.WaitHeaderBytes
	}
	if o.MaxBufferSeconds <= 0 {
		o.MaxBufferSeconds = d.MaxBufferSeconds
	}
	if o.RateCoef <= 0 {
		o.RateCoef = d.RateCoef
	}
	if o.SeekWaitFactor <= 0 {
		o.SeekWaitFactor = d.SeekWaitFactor
	}
	if o.DecodeInterval <= 0 {
		o.DecodeInterval = d.DecodeInterval
	}
	if o.ChunkInterval <= 0 {
		o.ChunkInterval = d.ChunkInterval
	}
	if o.TrackInterval <= 0 {
		o.TrackInterval = d.TrackInterval
	}
	if o.DisplayInterval <= 0 {
		o.DisplayInterval = d.DisplayInterval
	}
	if o.DrainPerTick <= 0 {
		o.DrainPerTick = d.DrainPerTick
	}
	return o
}

// Transports picks the fetcher for a URL. transport.Bindings implements it.
type Transports interface {
	ForURL(rawURL string) (transport.Fetcher, error)
}

// Streamer pulls a live source. transport.Streamer implements it.
type Streamer interface {
	Stream(ctx context.Context, url string, chunkSize int, deliver func([]byte)) error
}

// Deps are the collaborators of a Controller. Transports, Streamer and
// Engine may be nil; Play then fails with the matching code.
type Deps struct {
	Transports Transports
	Streamer   Streamer
	Engine     decoder.Engine
	Audio      audio.Factory
	Observer   Observer
	Logger     zerolog.Logger
}
