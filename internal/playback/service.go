// Package playback wraps the player controller for UI glue: it turns result
// codes into errors, fans notifications out to subscribers, records plays in
// the history and applies the repeat mode.
package playback

import (
	"context"
	"errors"
	"time"

	"github.com/llehouerou/ripple/internal/errmsg"
	"github.com/llehouerou/ripple/internal/history"
	"github.com/llehouerou/ripple/internal/player"
	"github.com/llehouerou/ripple/internal/render"
)

// ErrClosed is returned by control calls after Close.
var ErrClosed = errors.New("playback service closed")

// ResultError is a rejected control call.
type ResultError struct {
	Op     errmsg.Op
	Result player.Result
}

func (e *ResultError) Error() string {
	return string(e.Op) + ": " + e.Result.Message
}

// CodeOf returns the player code carried by err, or CodeSuccess.
func CodeOf(err error) player.Code {
	var re *ResultError
	if errors.As(err, &re) {
		return re.Result.Code
	}
	return player.CodeSuccess
}

// PlayOptions configures one Play call.
type PlayOptions struct {
	Renderer        render.Renderer
	Live            bool
	WaitHeaderBytes int64 // 0 uses the player default
}

// Recorder persists plays. *history.Store implements it.
type Recorder interface {
	Begin(ctx context.Context, p history.Play) (int64, error)
	Finish(ctx context.Context, id int64, e history.End) error
}

// Service defines the playback service contract.
type Service interface {
	// Playback control
	Play(url string, opts PlayOptions) error
	Pause() error
	Resume() error
	Toggle() error
	Stop() error
	Seek(delta time.Duration) error
	SeekTo(position time.Duration) error

	// State queries
	State() State
	IsPlaying() bool
	IsStopped() bool
	IsPaused() bool
	Position() time.Duration
	Duration() time.Duration
	Current() *Item
	Player() player.Interface

	// Mode control
	RepeatMode() RepeatMode
	SetRepeatMode(mode RepeatMode)
	CycleRepeatMode() RepeatMode

	// Event subscription
	Subscribe() *Subscription

	// Lifecycle
	Close() error
}
