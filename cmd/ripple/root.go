package main

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/llehouerou/ripple/internal/config"
	"github.com/llehouerou/ripple/internal/errmsg"
	"github.com/llehouerou/ripple/internal/history"
	"github.com/llehouerou/ripple/internal/log"
)

var errHistoryDisabled = errors.New("history is disabled in the configuration")

// app carries the state shared by all subcommands.
type app struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "ripple",
		Short:         "Progressive media playback controller",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"config file, read after ~/.config/ripple/config.toml and ./config.toml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(newPlayCmd(a), newServeCmd(a), newHistoryCmd(a))
	return root
}

func (a *app) setup() error {
	cfg, err := config.LoadFrom(a.configPath)
	if err != nil {
		return errors.New(errmsg.Format(errmsg.OpConfigLoad, err))
	}
	a.cfg = cfg
	a.configureLog(nil)
	return nil
}

// configureLog applies the log settings, writing to out (nil: stderr).
func (a *app) configureLog(out io.Writer) {
	level := a.cfg.Log.Level
	if a.logLevel != "" {
		level = a.logLevel
	}
	log.Configure(log.Config{Level: level, Output: out, Pretty: a.cfg.Log.Pretty})
}

// openHistory opens the configured store, or fails with errHistoryDisabled.
func (a *app) openHistory() (*history.Store, error) {
	if a.cfg.History.Disabled {
		return nil, errHistoryDisabled
	}
	store, err := history.Open(a.cfg.History.Path)
	if err != nil {
		return nil, errors.New(errmsg.Format(errmsg.OpHistoryOpen, err))
	}
	return store, nil
}
