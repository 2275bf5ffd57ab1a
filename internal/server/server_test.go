package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/llehouerou/ripple/internal/metrics"
	"github.com/llehouerou/ripple/internal/transport"
)

const mediaPath = "/media/clip.wav"

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}

func startServer(t *testing.T, data []byte) (*httptest.Server, string) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if data != nil {
		require.NoError(t, afero.WriteFile(fs, mediaPath, data, 0o644))
	}
	s := New(Options{File: mediaPath, Fs: fs, Logger: zerolog.Nop()})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func socketClient(t *testing.T) *transport.Socket {
	t.Helper()
	s := transport.NewSocket(transport.Options{Timeout: 2 * time.Second}, zerolog.Nop())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSocket_SizeAndData(t *testing.T) {
	data := payload(100_000)
	_, url := startServer(t, data)
	client := socketClient(t)
	before := testutil.ToFloat64(metrics.ServedBytes.WithLabelValues("ws"))

	info, err := client.GetSize(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size)

	// Larger than one read piece.
	chunk, err := client.FetchRange(context.Background(), url, 1000, 70_999, 1)
	require.NoError(t, err)
	assert.Equal(t, data[1000:71_000], chunk.Data)

	chunk, err = client.FetchRange(context.Background(), url, 99_990, 99_999, 2)
	require.NoError(t, err)
	assert.Equal(t, data[99_990:], chunk.Data)

	served := testutil.ToFloat64(metrics.ServedBytes.WithLabelValues("ws")) - before
	assert.Equal(t, float64(70_000+10), served)
}

func TestSocket_DataPastEndIsTruncated(t *testing.T) {
	data := payload(500)
	_, url := startServer(t, data)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(transport.Command{URL: url, Cmd: transport.CmdData, Start: 400, End: 999}))
	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, data[400:], msg)
}

func TestSocket_UnknownCommandClosesConnection(t *testing.T) {
	_, url := startServer(t, payload(10))

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(transport.Command{Cmd: "bogus"}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

func TestSocket_MissingFileClosesWithError(t *testing.T) {
	_, url := startServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr), "err = %v", err)
}

func TestMedia_RangeRequest(t *testing.T) {
	data := payload(4096)
	srv, _ := startServer(t, data)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/media", nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=100-199")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(data[100:200], body))
}

func TestMedia_WorksWithHTTPTransport(t *testing.T) {
	data := payload(8192)
	srv, _ := startServer(t, data)
	h := transport.NewHTTP(transport.Options{Timeout: 2 * time.Second}, zerolog.Nop())

	info, err := h.GetSize(context.Background(), srv.URL+"/media")
	require.NoError(t, err)
	assert.Equal(t, int64(8192), info.Size)

	chunk, err := h.FetchRange(context.Background(), srv.URL+"/media", 0, 1023, 1)
	require.NoError(t, err)
	assert.Equal(t, data[:1024], chunk.Data)
}

func TestMedia_MissingFile(t *testing.T) {
	srv, _ := startServer(t, nil)

	resp, err := http.Get(srv.URL + "/media")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := startServer(t, payload(10))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ripple_socket_connections")
}

func TestReadRange(t *testing.T) {
	data := payload(100)
	r := bytes.NewReader(data)

	got, err := readRange(r, 100, 90, 200)
	require.NoError(t, err)
	assert.Equal(t, data[90:], got)

	got, err = readRange(r, 100, 100, 150)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = readRange(r, 100, 101, 150)
	require.Error(t, err)
	_, err = readRange(r, 100, 10, 5)
	require.Error(t, err)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, mediaPath, payload(10), 0o644))
	s := New(Options{File: mediaPath, Fs: fs, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
