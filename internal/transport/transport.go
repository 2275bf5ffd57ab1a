// Package transport fetches media bytes for the player, either with HTTP
// range requests or over a companion websocket server.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/llehouerou/ripple/internal/source"
)

// ErrStatus is matched by errors carrying a non-success response status.
var ErrStatus = errors.New("unexpected status")

// ErrShortRead is returned when a response carries fewer bytes than requested.
var ErrShortRead = errors.New("short read")

// StatusError reports a non-success HTTP status.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", ErrStatus, e.Status, http.StatusText(e.Status))
}

func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// StatusOf returns the status carried by err, or 0.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// SizeInfo answers a size request.
type SizeInfo struct {
	Size   int64
	Status int
}

// Chunk is the payload of a range request. End is inclusive.
type Chunk struct {
	Data  []byte
	Start int64
	End   int64
	Seq   int64
}

// Fetcher is the chunk fetch contract used by the player. Implementations
// must be safe to call from several goroutines; the player never issues two
// range requests at once but the size request may overlap a late fetch.
type Fetcher interface {
	GetSize(ctx context.Context, url string) (SizeInfo, error)
	FetchRange(ctx context.Context, url string, start, end, seq int64) (Chunk, error)
}

// Bindings holds one Fetcher per protocol.
type Bindings struct {
	HTTP   Fetcher
	Socket Fetcher
}

// ForURL picks the binding for rawURL by scheme.
func (b Bindings) ForURL(rawURL string) (Fetcher, error) {
	p, err := source.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	var f Fetcher
	if p == source.ProtocolSocket {
		f = b.Socket
	} else {
		f = b.HTTP
	}
	if f == nil {
		return nil, fmt.Errorf("no %s transport configured", p)
	}
	return f, nil
}

// NewBindings builds the HTTP and websocket bindings from opts.
func NewBindings(opts Options, logger zerolog.Logger) Bindings {
	return Bindings{
		HTTP:   NewHTTP(opts, logger.With().Str("transport", "http").Logger()),
		Socket: NewSocket(opts, logger.With().Str("transport", "websocket").Logger()),
	}
}
