package notify

import (
	"context"
	"net/url"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/llehouerou/ripple/internal/playback"
)

const (
	iconPlaying = "media-playback-start"
	iconError   = "dialog-error"
)

// Watch notifies about every new item and every error seen on sub, until
// ctx is done or sub is closed. Item notifications replace one another.
func Watch(ctx context.Context, n Notifier, sub *playback.Subscription, timeout time.Duration, logger zerolog.Logger) {
	var shown uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done:
			return
		case e := <-sub.ItemChanged:
			if e.Current == nil {
				continue
			}
			id, err := n.Notify(NowPlaying(*e.Current, shown, timeout))
			if err != nil {
				logger.Debug().Err(err).Msg("now playing notification")
				continue
			}
			if id != 0 {
				shown = id
			}
		case e := <-sub.Error:
			if _, err := n.Notify(Failure(e, timeout)); err != nil {
				logger.Debug().Err(err).Msg("error notification")
			}
		}
	}
}

// NowPlaying describes a newly started item.
func NowPlaying(item playback.Item, replaces uint32, timeout time.Duration) Notification {
	body := hostOf(item.URL)
	if item.Live {
		body += " · live"
	}
	return Notification{
		Title:      DisplayName(item.URL),
		Body:       body,
		Icon:       iconPlaying,
		Timeout:    int32(timeout.Milliseconds()),
		ReplacesID: replaces,
		Urgency:    UrgencyLow,
	}
}

// Failure describes a reported playback error.
func Failure(e playback.ErrorEvent, timeout time.Duration) Notification {
	return Notification{
		Title:   "Playback failed: " + DisplayName(e.Item.URL),
		Body:    e.Message,
		Icon:    iconError,
		Timeout: int32(timeout.Milliseconds()),
		Urgency: UrgencyCritical,
	}
}

// DisplayName is the last path element of rawURL, or its host when the path
// is empty.
func DisplayName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if base := path.Base(u.Path); base != "." && base != "/" {
		return base
	}
	if u.Host != "" {
		return u.Host
	}
	return rawURL
}

func hostOf(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	return ""
}
