// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"src.bluestatic.org/mailattach/internal/interval"
	"src.bluestatic.org/mailattach/internal/logbook"
	"src.bluestatic.org/mailattach/internal/poll"
	"src.bluestatic.org/mailattach/pkg/version"
)

const (
	exitConfig = 1
	exitFatal  = 3
)

type options struct {
	intervalPath string
	secretsPath  string
	logsDir      string
	verbose      bool

	fs          afero.Fs
	stdin       io.Reader
	stdout      io.Writer
	interactive bool
}

func main() {
	o := &options{
		fs:          afero.NewOsFs(),
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		interactive: isTerminal(os.Stdin) && isTerminal(os.Stdout),
	}
	if err := newRootCommand(o).Execute(); err != nil {
		var fe *poll.FatalError
		if !errors.As(err, &fe) {
			fmt.Fprintf(os.Stderr, "mailattach: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func exitCode(err error) int {
	var fe *poll.FatalError
	if errors.As(err, &fe) {
		return exitFatal
	}
	return exitConfig
}

func newRootCommand(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:           "mailattach",
		Short:         "Save e-mail attachments from a POP3 mailbox into a folder",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.intervalPath, "interval", "config.ini", "Path to the polling interval file")
	flags.StringVar(&o.secretsPath, "secrets", "secrets.json", "Path to the connection and filter settings")
	flags.StringVar(&o.logsDir, "logs", "logs", "Directory of the daily log files")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "Log debug messages")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Poll the mailbox until a fatal error or a signal",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.run(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "once",
			Short: "Run a single cycle and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return o.once(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprint(o.stdout, version.VersionString)
			},
		},
		newSetPasswordCommand(o),
		newHistoryCommand(o),
	)
	return root
}

func (o *options) level() zapcore.Level {
	if o.verbose {
		return zap.DebugLevel
	}
	return zap.InfoLevel
}

func (o *options) logbook() *logbook.Book {
	return logbook.New(o.fs, o.logsDir, o.stdout, o.level())
}

// consoleLogger receives the messages logged outside a cycle.
func (o *options) consoleLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.Development = false
	logConfig.DisableStacktrace = true
	logConfig.Level.SetLevel(o.level())
	log, err := logConfig.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// loadInterval reads the interval file, creating it on first start. Failures
// are written to the day's log before returning.
func (o *options) loadInterval(book *logbook.Book) (interval.Interval, error) {
	log, closeLog, err := book.Open()
	if err != nil {
		return interval.Interval{}, err
	}
	defer closeLog()

	iv, err := interval.NewStore(o.fs, o.intervalPath, log).Load()
	if err != nil {
		log.Error("Error! Check the message below", zap.Error(err))
		return interval.Interval{}, err
	}
	return iv, nil
}
