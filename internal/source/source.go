// Package source describes the remote resource being played and the
// progress made fetching it.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultChunkSize is the maximum number of bytes requested per fetch.
const DefaultChunkSize = 65536

// Unbounded marks a live resource whose size is not known.
const Unbounded int64 = -1

// ErrInvalidURL is returned for empty or unparsable resource URLs.
var ErrInvalidURL = errors.New("invalid url")

// Protocol selects the transport binding.
type Protocol int

const (
	ProtocolHTTP Protocol = iota
	ProtocolSocket
)

func (p Protocol) String() string {
	if p == ProtocolSocket {
		return "websocket"
	}
	return "http"
}

// Descriptor tracks one resource. Only the download path mutates it.
type Descriptor struct {
	URL       string
	Size      int64 // Unbounded for live sources
	Offset    int64 // next byte to fetch
	ChunkSize int
}

// New validates rawURL and returns a descriptor with an unknown size.
func New(rawURL string, chunkSize int) (*Descriptor, error) {
	if _, err := Parse(rawURL); err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Descriptor{URL: rawURL, Size: Unbounded, ChunkSize: chunkSize}, nil
}

// Parse checks that rawURL names a fetchable resource and returns its protocol.
func Parse(rawURL string) (Protocol, error) {
	if strings.TrimSpace(rawURL) == "" {
		return 0, ErrInvalidURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return ProtocolHTTP, nil
	case "ws", "wss":
		return ProtocolSocket, nil
	default:
		return 0, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
}

// Protocol returns the binding for d's URL.
func (d *Descriptor) Protocol() Protocol {
	p, _ := Parse(d.URL)
	return p
}

// IsUnbounded reports whether the resource is a live stream.
func (d *Descriptor) IsUnbounded() bool {
	return d.Size < 0
}

// Remaining returns the bytes left to fetch, or -1 for live sources.
func (d *Descriptor) Remaining() int64 {
	if d.IsUnbounded() {
		return Unbounded
	}
	return max(d.Size-d.Offset, 0)
}

// Complete reports whether every byte of a sized resource was fetched.
func (d *Descriptor) Complete() bool {
	return !d.IsUnbounded() && d.Offset >= d.Size
}

// Advance moves the offset past a received chunk ending at end (inclusive).
// Out-of-order chunks never move the offset backwards.
func (d *Descriptor) Advance(end int64) {
	if end+1 > d.Offset {
		d.Offset = end + 1
	}
}

// Align repositions the offset, as requested by the engine after a seek.
// Offsets outside [0, Size) are rejected.
func (d *Descriptor) Align(offset int64) bool {
	if offset < 0 || (!d.IsUnbounded() && offset >= d.Size) {
		return false
	}
	d.Offset = offset
	return true
}
