package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	neturl "net/url"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/llehouerou/ripple/internal/audio"
	"github.com/llehouerou/ripple/internal/decoder"
	"github.com/llehouerou/ripple/internal/history"
	"github.com/llehouerou/ripple/internal/log"
	"github.com/llehouerou/ripple/internal/mp3engine"
	"github.com/llehouerou/ripple/internal/mpris"
	"github.com/llehouerou/ripple/internal/notify"
	"github.com/llehouerou/ripple/internal/playback"
	"github.com/llehouerou/ripple/internal/player"
	"github.com/llehouerou/ripple/internal/render"
	"github.com/llehouerou/ripple/internal/stderr"
	"github.com/llehouerou/ripple/internal/transport"
	"github.com/llehouerou/ripple/internal/wavengine"
)

type playFlags struct {
	live       bool
	yuv        string
	start      time.Duration
	resume     bool
	repeat     bool
	waitHeader int64
}

func newPlayCmd(a *app) *cobra.Command {
	var f playFlags
	cmd := &cobra.Command{
		Use:   "play URL",
		Short: "Play a media resource over http(s) or ws(s)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.play(cmd.Context(), cmd.OutOrStdout(), args[0], f)
		},
	}
	cmd.Flags().BoolVar(&f.live, "live", false, "treat the source as an unbounded live stream")
	cmd.Flags().StringVar(&f.yuv, "yuv", "", "write decoded video frames as raw yuv420p to this file")
	cmd.Flags().DurationVar(&f.start, "start", 0, "seek to this position once buffered")
	cmd.Flags().BoolVar(&f.resume, "resume", false, "start where the last stopped play of URL left off")
	cmd.Flags().BoolVar(&f.repeat, "repeat", false, "replay the resource when it finishes")
	cmd.Flags().Int64Var(&f.waitHeader, "wait-header", 0, "bytes to buffer before opening the decoder (0 uses the config)")
	return cmd
}

func (a *app) play(ctx context.Context, out io.Writer, url string, f playFlags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := stderr.Start(); err == nil {
		a.configureLog(stderr.Original())
		go stderr.Drain(log.WithComponent("audio"))
		defer func() {
			stderr.Stop()
			a.configureLog(nil)
		}()
	}

	fs := afero.NewOsFs()
	topts := transport.OptionsFromConfig(a.cfg.GetTransportConfig())
	bindings := transport.NewBindings(topts, log.WithComponent("transport"))
	if c, ok := bindings.Socket.(io.Closer); ok {
		defer c.Close()
	}

	stats := &render.Stats{}
	var renderer render.Renderer = stats
	var yuv *render.YUVWriter
	if f.yuv != "" {
		file, err := fs.Create(f.yuv)
		if err != nil {
			return fmt.Errorf("create %s: %w", f.yuv, err)
		}
		defer file.Close()
		yuv = render.NewYUVWriter(file)
		renderer = yuv
	}

	acfg := a.cfg.GetAudioConfig()
	speakers := audio.NewSpeakerFactory(audio.SpeakerOptions{
		SampleRate: acfg.SampleRate,
		Buffer:     time.Duration(acfg.BufferMs) * time.Millisecond,
		Volume:     acfg.Volume,
	}, log.WithComponent("audio"))

	hub := playback.NewHub()
	ctrl := player.New(player.Deps{
		Transports: bindings,
		Streamer:   transport.NewStreamer(topts, log.WithComponent("transport")),
		Engine:     engineFor(url, fs),
		Audio:      speakers,
		Observer:   hub,
		Logger:     log.WithComponent("player"),
	}, player.OptionsFromConfig(a.cfg.GetPlayerConfig()))

	var rec playback.Recorder
	start := f.start
	store, err := a.openHistory()
	switch {
	case errors.Is(err, errHistoryDisabled):
	case err != nil:
		log.WithComponent("history").Warn().Err(err).Msg("playing without history")
	default:
		defer store.Close()
		rec = store
		if f.resume && start == 0 {
			start = resumePosition(ctx, store, url)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelRun := context.WithCancel(gctx)
	defer cancelRun()
	g.Go(func() error { return ctrl.Run(runCtx) })

	svc := playback.New(ctrl, hub, rec, log.WithComponent("playback"))
	defer svc.Close()
	if f.repeat {
		svc.SetRepeatMode(playback.RepeatOne)
	}
	sub := svc.Subscribe()
	opts := playback.PlayOptions{Renderer: renderer, Live: f.live, WaitHeaderBytes: f.waitHeader}

	dcfg := a.cfg.GetDesktopConfig()
	if dcfg.Notifications {
		notifier, _ := notify.New()
		nsub := svc.Subscribe()
		timeout := time.Duration(dcfg.NotifyTimeoutMs) * time.Millisecond
		g.Go(func() error {
			notify.Watch(runCtx, notifier, nsub, timeout, log.WithComponent("notify"))
			return nil
		})
	}
	if dcfg.MPRIS {
		adapter, err := mpris.New(svc, opts, log.WithComponent("mpris"))
		if err != nil {
			log.WithComponent("mpris").Warn().Err(err).Msg("media player interface unavailable")
		} else {
			defer adapter.Close()
		}
	}

	if err := svc.Play(url, opts); err != nil {
		cancelRun()
		_ = g.Wait()
		return err
	}

	g.Go(func() error {
		defer cancelRun()
		return watch(gctx, out, svc, sub, start)
	})
	err = g.Wait()

	if frames := stats.Frames(); frames > 0 {
		fmt.Fprintf(out, "rendered %d frames (%s)\n", frames, humanize.Bytes(uint64(stats.Bytes())))
	}
	if yuv != nil {
		fmt.Fprintf(out, "wrote %d frames to %s\n", yuv.Frames(), f.yuv)
		if werr := yuv.Err(); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

// engineFor picks the decoding engine from the URL path extension.
func engineFor(rawURL string, fs afero.Fs) decoder.Engine {
	ext := path.Ext(rawURL)
	if u, err := neturl.Parse(rawURL); err == nil {
		ext = path.Ext(u.Path)
	}
	if strings.EqualFold(ext, ".mp3") {
		return mp3engine.New(fs, log.WithComponent("mp3engine"))
	}
	return wavengine.New(fs, log.WithComponent("wavengine"))
}

func resumePosition(ctx context.Context, store *history.Store, url string) time.Duration {
	pos, err := store.LastPosition(ctx, url)
	if err != nil {
		if !errors.Is(err, history.ErrNotFound) {
			log.WithComponent("history").Warn().Err(err).Msg("read last position")
		}
		return 0
	}
	return pos
}

// watch prints playback events until the session ends or ctx is done. start,
// if set, is applied once the first buffering phase is over.
func watch(ctx context.Context, out io.Writer, svc playback.Service, sub *playback.Subscription, start time.Duration) error {
	seekPending := start > 0
	for {
		select {
		case <-ctx.Done():
			if !svc.IsStopped() {
				_ = svc.Stop()
			}
			fmt.Fprintln(out)
			return nil
		case <-sub.Done:
			return nil
		case e := <-sub.StateChanged:
			fmt.Fprintf(out, "\n%s\n", e.Current)
		case e := <-sub.Buffering:
			if e.Active {
				fmt.Fprint(out, "\nbuffering...")
				continue
			}
			if seekPending {
				seekPending = false
				if err := svc.SeekTo(start); err != nil {
					fmt.Fprintf(out, "\nseek to %s: %v\n", formatClock(start), err)
				}
			}
		case e := <-sub.PositionChanged:
			total := "live"
			if e.Duration > 0 {
				total = formatClock(e.Duration)
			}
			fmt.Fprintf(out, "\r%s / %s", formatClock(e.Position), total)
		case e := <-sub.Finished:
			if e.Repeated {
				continue
			}
			fmt.Fprintln(out, "\nfinished")
			return nil
		case e := <-sub.Error:
			return errors.New(e.Message)
		}
	}
}

// formatClock renders d as m:ss, or h:mm:ss past one hour.
func formatClock(d time.Duration) string {
	s := int(max(d, 0).Round(time.Second) / time.Second)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
