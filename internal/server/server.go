// Package server is the companion service for the websocket transport. It
// serves one media resource over a websocket command protocol, plus plain
// HTTP range requests and the Prometheus registry.
package server

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/llehouerou/ripple/internal/errmsg"
	"github.com/llehouerou/ripple/internal/metrics"
	"github.com/llehouerou/ripple/internal/transport"
)

// readPiece is the size of one file read while assembling a data reply.
const readPiece = 32 * 1024

const shutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	File   string   // served resource
	Fs     afero.Fs // nil uses the OS filesystem
	Logger zerolog.Logger
}

// Server serves File on /ws, /media and exposes /metrics.
type Server struct {
	file     string
	fs       afero.Fs
	log      zerolog.Logger
	upgrader websocket.Upgrader
	router   chi.Router

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New builds the server and its routes.
func New(opts Options) *Server {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	s := &Server{
		file: opts.File,
		fs:   opts.Fs,
		log:  opts.Logger,
		upgrader: websocket.Upgrader{
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Get("/ws", s.handleSocket)
	r.Get("/media", s.handleMedia)
	r.Method(http.MethodHead, "/media", http.HandlerFunc(s.handleMedia))
	r.Handle("/metrics", promhttp.Handler())
	s.router = r
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// Hijacked connections are not tracked by Shutdown.
	srv.RegisterOnShutdown(s.closeSockets)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info().Str("addr", addr).Str("file", s.file).Msg("companion server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: %w", errmsg.OpServe, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		s.log.Info().Msg("companion server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.track(conn)
	defer s.untrack(conn)

	logger := s.log.With().Str("remote", r.RemoteAddr).Str("request_id", middleware.GetReqID(r.Context())).Logger()

	f, err := s.fs.Open(s.file)
	if err != nil {
		logger.Error().Err(err).Msg(errmsg.FormatWith(errmsg.OpFileOpen, s.file, err))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "resource unavailable"))
		return
	}
	defer f.Close()

	logger.Info().Msg("socket client connected")
	for {
		var cmd transport.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Err(err).Msg("socket read failed")
			}
			logger.Info().Msg("socket client disconnected")
			return
		}
		if err := s.answer(conn, f, cmd); err != nil {
			logger.Warn().Err(err).Str("cmd", cmd.Cmd).Msg("socket command failed")
			return
		}
	}
}

// answer writes the reply to one command.
func (s *Server) answer(conn *websocket.Conn, f afero.File, cmd transport.Command) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.file, err)
	}
	size := info.Size()

	switch cmd.Cmd {
	case transport.CmdSize:
		return conn.WriteMessage(websocket.BinaryMessage, binary.LittleEndian.AppendUint32(nil, uint32(size)))
	case transport.CmdData:
		data, err := readRange(f, size, cmd.Start, cmd.End)
		if err != nil {
			return err
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return fmt.Errorf("write data reply: %w", err)
		}
		metrics.ServedBytes.WithLabelValues("ws").Add(float64(len(data)))
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd.Cmd)
	}
}

// readRange reads min(size-start, end-start+1) bytes at start.
func readRange(f io.ReaderAt, size, start, end int64) ([]byte, error) {
	if start < 0 || start > size || end < start {
		return nil, fmt.Errorf("invalid range %d-%d of %d bytes", start, end, size)
	}
	n := min(size-start, end-start+1)
	data := make([]byte, n)
	for off := int64(0); off < n; {
		piece := min(readPiece, n-off)
		read, err := f.ReadAt(data[off:off+piece], start+off)
		off += int64(read)
		if err != nil && !(errors.Is(err, io.EOF) && off == n) {
			return nil, fmt.Errorf("read %d bytes at %d: %w", piece, start+off, err)
		}
	}
	return data, nil
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	f, err := s.fs.Open(s.file)
	if err != nil {
		s.log.Error().Err(err).Msg(errmsg.FormatWith(errmsg.OpFileOpen, s.file, err))
		http.Error(w, "resource unavailable", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	http.ServeContent(ww, r, path.Base(s.file), info.ModTime(), f)
	metrics.ServedBytes.WithLabelValues("media").Add(float64(ww.BytesWritten()))
}

func (s *Server) track(conn *websocket.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	metrics.SocketConnections.Inc()
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close()
	metrics.SocketConnections.Dec()
}

func (s *Server) closeSockets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// requestLogger logs one line per request once the handler returns.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
