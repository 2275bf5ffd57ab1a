package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Player    PlayerConfig    `koanf:"player"`
	Transport TransportConfig `koanf:"transport"`
	Audio     AudioConfig     `koanf:"audio"`
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	History   HistoryConfig   `koanf:"history"`
	Desktop   DesktopConfig   `koanf:"desktop"`
}

// PlayerConfig holds the playback pipeline tuning values.
type PlayerConfig struct {
	ChunkSize        int     `koanf:"chunk_size"`         // bytes per fetch (default: 65536)
	WaitHeaderBytes  int64   `koanf:"wait_header_bytes"`  // bytes before opening the decoder (default: 512 KiB)
	MaxBufferSeconds float64 `koanf:"max_buffer_seconds"` // high-water mark in seconds (default: 1.0)
	MaxBufferUnits   int     `koanf:"max_buffer_units"`   // count-based high-water mark, used when > 0
	DownloadRateCoef float64 `koanf:"download_rate_coef"` // fetch speed / byte rate (default: 2.0)
	SeekWaitFactor   float64 `koanf:"seek_wait_factor"`   // safety factor for post-seek buffering (default: 2.0)
	DecodeIntervalMs int     `koanf:"decode_interval_ms"` // decode poll interval (default: 5)
	ChunkIntervalMs  int     `koanf:"chunk_interval_ms"`  // pacing before the byte rate is known (default: 200)
	TrackIntervalMs  int     `koanf:"track_interval_ms"`  // position update interval (default: 500)
	DisplayFPS       int     `koanf:"display_fps"`        // display tick rate (default: 60)
	DrainPerTick     int     `koanf:"drain_per_tick"`     // units released per display tick (default: 2)
	AccurateSeek     *bool   `koanf:"accurate_seek"`      // forward accurate flag to the engine (default: true)
}

// TransportConfig configures the network bindings.
type TransportConfig struct {
	TimeoutMs  int     `koanf:"timeout_ms"`   // per request timeout (default: 10000)
	MaxRetries int     `koanf:"max_retries"`  // retries per chunk (default: 2)
	BackoffMs  int     `koanf:"backoff_ms"`   // first retry delay (default: 200)
	RateLimit  float64 `koanf:"rate_limit"`   // requests per second, 0 disables
	UserAgent  string  `koanf:"user_agent"`   // HTTP user agent
	DialTimeMs int     `koanf:"dial_time_ms"` // websocket handshake timeout (default: 5000)
}

// AudioConfig configures the speaker sink.
type AudioConfig struct {
	Volume     float64 `koanf:"volume"`      // 0.0-1.0 (default: 1.0)
	SampleRate int     `koanf:"sample_rate"` // speaker rate, 0 uses the first stream's rate
	BufferMs   int     `koanf:"buffer_ms"`   // speaker buffer (default: 100)
}

// ServerConfig configures the companion file server.
type ServerConfig struct {
	Addr string `koanf:"addr"` // listen address (default: ":8080")
	File string `koanf:"file"` // served resource
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// HistoryConfig configures the playback history database.
type HistoryConfig struct {
	Path     string `koanf:"path"` // empty means XDG data dir
	Disabled bool   `koanf:"disabled"`
}

// DesktopConfig configures the D-Bus integrations (Linux only).
type DesktopConfig struct {
	Notifications   bool `koanf:"notifications"`     // notify on new items and errors
	NotifyTimeoutMs int  `koanf:"notify_timeout_ms"` // (default: 5000)
	MPRIS           bool `koanf:"mpris"`             // expose the player as an MPRIS media player
}

// Load reads the default config files.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads the default config files and then explicit, if non-empty.
func LoadFrom(explicit string) (*Config, error) {
	k := koanf.New(".")

	// Try config files in order of priority (last wins)
	configPaths := getConfigPaths()
	if explicit != "" {
		configPaths = append(configPaths, expandPath(explicit))
	}

	for _, path := range configPaths {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	if cfg.Server.File != "" {
		cfg.Server.File = expandPath(cfg.Server.File)
	}
	if cfg.History.Path != "" {
		cfg.History.Path = expandPath(cfg.History.Path)
	}
	cfg.Transport.UserAgent = strings.TrimSpace(cfg.Transport.UserAgent)

	return cfg, nil
}

func getConfigPaths() []string {
	paths := []string{}

	// 1. ~/.config/ripple/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ripple", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetPlayerConfig returns the player configuration with defaults applied.
func (c *Config) GetPlayerConfig() PlayerConfig {
	cfg := c.Player

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 65536
	}
	if cfg.WaitHeaderBytes <= 0 {
		cfg.WaitHeaderBytes = 512 * 1024
	}
	if cfg.MaxBufferSeconds <= 0 {
		cfg.MaxBufferSeconds = 1.0
	}
	if cfg.MaxBufferUnits < 0 {
		cfg.MaxBufferUnits = 0
	}
	if cfg.DownloadRateCoef <= 1 {
		cfg.DownloadRateCoef = 2.0
	}
	if cfg.SeekWaitFactor <= 0 {
		cfg.SeekWaitFactor = 2.0
	}
	if cfg.DecodeIntervalMs <= 0 {
		cfg.DecodeIntervalMs = 5
	}
	if cfg.ChunkIntervalMs <= 0 {
		cfg.ChunkIntervalMs = 200
	}
	if cfg.TrackIntervalMs <= 0 {
		cfg.TrackIntervalMs = 500
	}
	if cfg.DisplayFPS <= 0 || cfg.DisplayFPS > 240 {
		cfg.DisplayFPS = 60
	}
	if cfg.DrainPerTick <= 0 {
		cfg.DrainPerTick = 2
	}
	if cfg.AccurateSeek == nil {
		accurate := true
		cfg.AccurateSeek = &accurate
	}

	return cfg
}

// GetTransportConfig returns the transport configuration with defaults applied.
func (c *Config) GetTransportConfig() TransportConfig {
	cfg := c.Transport

	if cfg.TimeoutMs <= 0 {
		cfg.TimeoutMs = 10000
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BackoffMs <= 0 {
		cfg.BackoffMs = 200
	}
	if cfg.RateLimit < 0 {
		cfg.RateLimit = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ripple/1.0"
	}
	if cfg.DialTimeMs <= 0 {
		cfg.DialTimeMs = 5000
	}

	return cfg
}

// GetAudioConfig returns the audio configuration with defaults applied.
func (c *Config) GetAudioConfig() AudioConfig {
	cfg := c.Audio

	if cfg.Volume <= 0 || cfg.Volume > 1 {
		cfg.Volume = 1.0
	}
	if cfg.SampleRate < 0 {
		cfg.SampleRate = 0
	}
	if cfg.BufferMs <= 0 {
		cfg.BufferMs = 100
	}

	return cfg
}

// GetServerConfig returns the server configuration with defaults applied.
func (c *Config) GetServerConfig() ServerConfig {
	cfg := c.Server
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	return cfg
}

// GetDesktopConfig returns the desktop configuration with defaults applied.
func (c *Config) GetDesktopConfig() DesktopConfig {
	cfg := c.Desktop
	if cfg.NotifyTimeoutMs <= 0 {
		cfg.NotifyTimeoutMs = 5000
	}
	return cfg
}

// Timeout returns the per request timeout.
func (t TransportConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// Backoff returns the first retry delay.
func (t TransportConfig) Backoff() time.Duration {
	return time.Duration(t.BackoffMs) * time.Millisecond
}

// DialTimeout returns the websocket handshake timeout.
func (t TransportConfig) DialTimeout() time.Duration {
	return time.Duration(t.DialTimeMs) * time.Millisecond
}
