package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/llehouerou/ripple/internal/metrics"
	"github.com/llehouerou/ripple/internal/source"
)

// Streamer pulls an unbounded resource with one long GET.
type Streamer struct {
	client    *http.Client
	userAgent string
	log       zerolog.Logger
}

// NewStreamer creates a streamer. The client must not set a total timeout.
func NewStreamer(opts Options, logger zerolog.Logger) *Streamer {
	opts = normalizeOptions(opts)
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &Streamer{client: client, userAgent: opts.UserAgent, log: logger}
}

// Stream reads url until EOF or ctx is cancelled, handing deliver pieces of
// at most chunkSize bytes. Each piece is a fresh slice owned by the callee.
// Cancellation is not an error.
func (s *Streamer) Stream(ctx context.Context, url string, chunkSize int, deliver func([]byte)) error {
	if chunkSize <= 0 {
		chunkSize = source.DefaultChunkSize
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("stream %s: %w", url, err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("stream %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("stream %s: %w", url, &StatusError{Status: resp.StatusCode})
	}

	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			piece := make([]byte, n)
			copy(piece, buf[:n])
			total += int64(n)
			metrics.BytesFetched.Add(float64(n))
			deliver(piece)
		}
		if errors.Is(err, io.EOF) {
			s.log.Info().Int64("bytes", total).Msg("stream done")
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream %s: %w", url, err)
		}
	}
}
