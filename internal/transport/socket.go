package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/llehouerou/ripple/internal/metrics"
)

// Command is the JSON request understood by the companion server.
type Command struct {
	URL   string `json:"url"`
	Cmd   string `json:"cmd"`
	Start int64  `json:"start,omitempty"`
	End   int64  `json:"end,omitempty"`
}

const (
	CmdSize = "size"
	CmdData = "data"
)

// Socket talks to the companion server over one persistent websocket.
// Requests are serialized: a response is read completely before the next
// command is written.
type Socket struct {
	dialer  *websocket.Dialer
	timeout time.Duration
	log     zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	url  string
}

var _ Fetcher = (*Socket)(nil)

// NewSocket creates the websocket binding. No connection is made until the
// first request.
func NewSocket(opts Options, logger zerolog.Logger) *Socket {
	opts = normalizeOptions(opts)
	return &Socket{
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.DialTimeout,
			ReadBufferSize:   64 * 1024,
		},
		timeout: opts.Timeout,
		log:     logger,
	}
}

// GetSize sends a size command. The reply is a 4-byte little-endian length.
func (s *Socket) GetSize(ctx context.Context, url string) (SizeInfo, error) {
	start := time.Now()
	data, err := s.request(ctx, url, Command{URL: url, Cmd: CmdSize}, 4)
	metrics.ObserveFetch("websocket", "size", 0, err, time.Since(start))
	if err != nil {
		return SizeInfo{}, fmt.Errorf("get size of %s: %w", url, err)
	}
	size := int64(binary.LittleEndian.Uint32(data))
	return SizeInfo{Size: size, Status: 200}, nil
}

// FetchRange sends a data command and reassembles the binary reply.
func (s *Socket) FetchRange(ctx context.Context, url string, start, end, seq int64) (Chunk, error) {
	began := time.Now()
	cmd := Command{URL: url, Cmd: CmdData, Start: start, End: end}
	data, err := s.request(ctx, url, cmd, int(end-start+1))
	metrics.ObserveFetch("websocket", "range", 0, err, time.Since(began))
	if err != nil {
		return Chunk{Start: start, End: end, Seq: seq}, fmt.Errorf("fetch %s bytes=%d-%d: %w", url, start, end, err)
	}
	return Chunk{Data: data, Start: start, End: end, Seq: seq}, nil
}

func (s *Socket) request(ctx context.Context, url string, cmd Command, want int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, err := s.connect(ctx, url)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)
	// Unblock a pending read when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	data, err := exchange(conn, cmd, want)
	if err != nil {
		// A half-read reply would desynchronize the stream.
		s.dropLocked()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return data, nil
}

func exchange(conn *websocket.Conn, cmd Command, want int) ([]byte, error) {
	if err := conn.WriteJSON(cmd); err != nil {
		return nil, fmt.Errorf("write %s command: %w", cmd.Cmd, err)
	}

	var data []byte
	for len(data) < want {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read %s reply: %w", cmd.Cmd, err)
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if data == nil && len(msg) >= want {
			data = msg
			break
		}
		data = append(data, msg...)
	}
	if len(data) != want {
		return nil, fmt.Errorf("%w: %s reply has %d bytes, want %d", ErrShortRead, cmd.Cmd, len(data), want)
	}
	return data, nil
}

func (s *Socket) connect(ctx context.Context, url string) (*websocket.Conn, error) {
	if s.conn != nil && s.url == url {
		return s.conn, nil
	}
	s.dropLocked()

	conn, resp, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("dial %s: %w", url, &StatusError{Status: resp.StatusCode})
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	s.log.Info().Str("url", url).Msg("websocket connected")
	s.conn = conn
	s.url = url
	return conn, nil
}

func (s *Socket) dropLocked() {
	if s.conn == nil {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
	s.url = ""
}

// Close releases the connection.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked()
	return nil
}
