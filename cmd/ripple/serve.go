package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/llehouerou/ripple/internal/errmsg"
	"github.com/llehouerou/ripple/internal/log"
	"github.com/llehouerou/ripple/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve [FILE]",
		Short: "Serve a media file on /ws, /media and /metrics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scfg := a.cfg.GetServerConfig()
			if len(args) == 1 {
				scfg.File = args[0]
			}
			if addr != "" {
				scfg.Addr = addr
			}
			if scfg.File == "" {
				return errors.New("no file to serve: pass FILE or set server.file")
			}

			fs := afero.NewOsFs()
			if _, err := fs.Stat(scfg.File); err != nil {
				return errors.New(errmsg.FormatWith(errmsg.OpFileOpen, scfg.File, err))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "serving %s on %s\n", scfg.File, scfg.Addr)
			srv := server.New(server.Options{File: scfg.File, Fs: fs, Logger: log.WithComponent("server")})
			return srv.Serve(ctx, scfg.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr or :8080)")
	return cmd
}
