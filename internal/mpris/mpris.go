//go:build linux

package mpris

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/quarckster/go-mpris-server/pkg/server"
	"github.com/quarckster/go-mpris-server/pkg/types"
	"github.com/rs/zerolog"

	"github.com/llehouerou/ripple/internal/playback"
	"github.com/llehouerou/ripple/internal/source"
)

// Adapter exposes a playback service as an MPRIS media player.
type Adapter struct {
	server *server.Server
	log    zerolog.Logger
}

// New registers the service on the session bus and serves it in the
// background. opts are used for URIs opened through MPRIS.
func New(service playback.Service, opts playback.PlayOptions, logger zerolog.Logger) (*Adapter, error) {
	a := &Adapter{
		server: server.NewServer("ripple", rootAdapter{}, &playerAdapter{service: service, opts: opts}),
		log:    logger,
	}
	go func() {
		if err := a.server.Listen(); err != nil {
			a.log.Warn().Err(err).Msg("mpris server stopped")
		}
	}()
	return a, nil
}

// Close unregisters the player.
func (a *Adapter) Close() error {
	return a.server.Stop()
}

type rootAdapter struct{}

func (rootAdapter) Raise() error { return nil }
func (rootAdapter) Quit() error { return nil }
func (rootAdapter) CanQuit() (bool, error) { return false, nil }
func (rootAdapter) CanRaise() (bool, error) { return false, nil }
func (rootAdapter) HasTrackList() (bool, error) { return false, nil }
func (rootAdapter) Identity() (string, error) { return "ripple", nil }

//nolint:revive // Method name required by interface.
func (rootAdapter) SupportedUriSchemes() ([]string, error) {
	return []string{"http", "https", "ws", "wss"}, nil
}

func (rootAdapter) SupportedMimeTypes() ([]string, error) {
	return []string{"audio/wav", "audio/x-wav", "audio/vnd.wave"}, nil
}

// playerAdapter implements the MPRIS player interface over the service.
// There is no queue, so next and previous do nothing.
type playerAdapter struct {
	service playback.Service
	opts    playback.PlayOptions
}

func (p *playerAdapter) Next() error { return nil }
func (p *playerAdapter) Previous() error { return nil }
func (p *playerAdapter) Pause() error { return p.service.Pause() }
func (p *playerAdapter) Stop() error { return p.service.Stop() }

func (p *playerAdapter) PlayPause() error {
	if p.service.IsStopped() {
		return nil
	}
	return p.service.Toggle()
}

func (p *playerAdapter) Play() error {
	if p.service.IsPaused() {
		return p.service.Resume()
	}
	return nil
}

func (p *playerAdapter) Seek(offset types.Microseconds) error {
	return p.service.Seek(time.Duration(offset) * time.Microsecond)
}

func (p *playerAdapter) SetPosition(trackID string, position types.Microseconds) error {
	cur := p.service.Current()
	if cur == nil || trackID != trackPath(cur.URL) {
		// Stale track id: MPRIS says to ignore the call.
		return nil
	}
	return p.service.SeekTo(time.Duration(position) * time.Microsecond)
}

//nolint:revive // Method name required by interface.
func (p *playerAdapter) OpenUri(uri string) error {
	if _, err := source.Parse(uri); err != nil {
		return err
	}
	return p.service.Play(uri, p.opts)
}

func (p *playerAdapter) PlaybackStatus() (types.PlaybackStatus, error) {
	switch p.service.State() {
	case playback.StatePlaying:
		return types.PlaybackStatusPlaying, nil
	case playback.StatePaused:
		return types.PlaybackStatusPaused, nil
	default:
		return types.PlaybackStatusStopped, nil
	}
}

func (p *playerAdapter) Metadata() (types.Metadata, error) {
	cur := p.service.Current()
	if cur == nil {
		return types.Metadata{}, nil
	}
	return types.Metadata{
		TrackId: dbus.ObjectPath(trackPath(cur.URL)),
		Length:  types.Microseconds(p.service.Duration().Microseconds()),
		Title:   cur.URL,
	}, nil
}

func (p *playerAdapter) Position() (int64, error) {
	return p.service.Position().Microseconds(), nil
}

func (p *playerAdapter) Rate() (float64, error) { return 1.0, nil }
func (p *playerAdapter) SetRate(float64) error { return nil }
func (p *playerAdapter) MinimumRate() (float64, error) { return 1.0, nil }
func (p *playerAdapter) MaximumRate() (float64, error) { return 1.0, nil }
func (p *playerAdapter) Volume() (float64, error) { return 1.0, nil }
func (p *playerAdapter) SetVolume(float64) error { return nil }
func (p *playerAdapter) CanGoNext() (bool, error) { return false, nil }
func (p *playerAdapter) CanGoPrevious() (bool, error) { return false, nil }
func (p *playerAdapter) CanControl() (bool, error) { return true, nil }

func (p *playerAdapter) CanPlay() (bool, error) {
	return p.service.Current() != nil, nil
}

func (p *playerAdapter) CanPause() (bool, error) {
	return p.service.Current() != nil, nil
}

// CanSeek is false for live sources and before the duration is known.
func (p *playerAdapter) CanSeek() (bool, error) {
	cur := p.service.Current()
	return cur != nil && !cur.Live && p.service.Duration() > 0, nil
}

func (p *playerAdapter) LoopStatus() (types.LoopStatus, error) {
	if p.service.RepeatMode() == playback.RepeatOne {
		return types.LoopStatusTrack, nil
	}
	return types.LoopStatusNone, nil
}

// SetLoopStatus maps Playlist to Track: there is only one item.
func (p *playerAdapter) SetLoopStatus(status types.LoopStatus) error {
	if status == types.LoopStatusNone {
		p.service.SetRepeatMode(playback.RepeatOff)
	} else {
		p.service.SetRepeatMode(playback.RepeatOne)
	}
	return nil
}

func trackPath(url string) string {
	h := fnv.New64a()
	h.Write([]byte(url))
	return fmt.Sprintf("/org/ripple/Track/%x", h.Sum64())
}
