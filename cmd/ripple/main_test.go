package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llehouerou/ripple/internal/history"
	"github.com/llehouerou/ripple/internal/log"
	"github.com/llehouerou/ripple/internal/mp3engine"
	"github.com/llehouerou/ripple/internal/playback"
	"github.com/llehouerou/ripple/internal/player"
	"github.com/llehouerou/ripple/internal/render"
	"github.com/llehouerou/ripple/internal/wavengine"
)

// writeConfig points the history at a temporary database.
func writeConfig(t *testing.T, extra string) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "history.db")
	cfgPath = filepath.Join(dir, "config.toml")
	content := "[history]\npath = \"" + dbPath + "\"\n" + extra
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))
	return cfgPath, dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T, dbPath string) {
	t.Helper()
	store, err := history.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	id, err := store.Begin(ctx, history.Play{Session: "s1", URL: "http://host/a.wav"})
	require.NoError(t, err)
	require.NoError(t, store.Finish(ctx, id, history.End{
		Outcome:  history.OutcomeStopped,
		Position: 65 * time.Second,
		Duration: 3 * time.Minute,
	}))
	id, err = store.Begin(ctx, history.Play{Session: "s2", URL: "ws://host/b.wav"})
	require.NoError(t, err)
	require.NoError(t, store.Finish(ctx, id, history.End{Outcome: history.OutcomeFailed, Code: -1, Status: 404}))
}

func TestHistoryCommand_ListsPlays(t *testing.T) {
	cfgPath, dbPath := writeConfig(t, "")
	seed(t, dbPath)

	out, err := execute(t, "--config", cfgPath, "history")
	require.NoError(t, err)

	assert.Contains(t, out, "http://host/a.wav")
	assert.Contains(t, out, "1:05 / 3:00")
	assert.Contains(t, out, "failed (404)")
}

func TestHistoryCommand_Clear(t *testing.T) {
	cfgPath, dbPath := writeConfig(t, "")
	seed(t, dbPath)

	out, err := execute(t, "--config", cfgPath, "history", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared 2 plays")

	out, err = execute(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "no plays recorded")
}

func TestHistoryCommand_Disabled(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[history]\ndisabled = true\n"), 0o600))

	_, err := execute(t, "--config", cfgPath, "history")
	assert.ErrorIs(t, err, errHistoryDisabled)
}

func TestServeCommand_RequiresFile(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")

	_, err := execute(t, "--config", cfgPath, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file to serve")

	_, err = execute(t, "--config", cfgPath, "serve", filepath.Join(t.TempDir(), "missing.wav"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to open media file")
}

func TestPlayCommand_RequiresURL(t *testing.T) {
	_, err := execute(t, "play")
	require.Error(t, err)
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{-time.Second, "0:00"},
		{59*time.Second + 600*time.Millisecond, "1:00"},
		{3*time.Minute + 7*time.Second, "3:07"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := formatClock(tt.in); got != tt.want {
			t.Errorf("formatClock(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func startWatched(t *testing.T) (playback.Service, *player.Mock, *playback.Subscription) {
	t.Helper()
	p := player.NewMock()
	svc := playback.New(p, playback.NewHub(), nil, log.Nop())
	t.Cleanup(func() { svc.Close() })
	sub := svc.Subscribe()
	require.NoError(t, svc.Play("http://host/a.wav", playback.PlayOptions{Renderer: &render.Stats{}}))
	return svc, p, sub
}

func TestWatch_ReturnsOnFinish(t *testing.T) {
	svc, p, sub := startWatched(t)
	p.Report(player.Report{Kind: player.ReportFinished, Code: player.FinishedCode, Message: "Finished"})

	var out bytes.Buffer
	require.NoError(t, watch(context.Background(), &out, svc, sub, 0))
	assert.Contains(t, out.String(), "finished")
}

func TestWatch_ReturnsReportedError(t *testing.T) {
	svc, p, sub := startWatched(t)
	p.Report(player.Report{Kind: player.ReportError, Code: -1, Status: 500, Message: "chunk request failed"})

	err := watch(context.Background(), io.Discard, svc, sub, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk request failed")
}

func TestWatch_CancelStopsPlayback(t *testing.T) {
	svc, p, sub := startWatched(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, watch(ctx, io.Discard, svc, sub, 0))
	assert.Equal(t, player.Idle, p.State())
}

func TestEngineFor_ByExtension(t *testing.T) {
	fs := afero.NewMemMapFs()
	assert.IsType(t, &mp3engine.Engine{}, engineFor("http://x/a/song.MP3?token=1", fs))
	assert.IsType(t, &mp3engine.Engine{}, engineFor("ws://x/live.mp3", fs))
	assert.IsType(t, &wavengine.Engine{}, engineFor("http://x/a.wav", fs))
	assert.IsType(t, &wavengine.Engine{}, engineFor("http://x/song.mp3.wav", fs))
}
