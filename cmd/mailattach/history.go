// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"src.bluestatic.org/mailattach/internal/journal"
	"src.bluestatic.org/mailattach/internal/secrets"
)

func newHistoryCommand(o *options) *cobra.Command {
	var (
		limit       int
		journalPath string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List the most recently saved attachments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if journalPath == "" {
				s, err := secrets.NewProvider(o.fs, o.secretsPath, &lazyKeyring{}).Resolve()
				if err != nil {
					return err
				}
				journalPath = s.JournalPath
			}
			if journalPath == "" {
				return fmt.Errorf("%w: %s", secrets.ErrMissingSetting, secrets.KeyJournalPath)
			}
			return printHistory(cmd.Context(), o.stdout, journalPath, limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of deliveries to list")
	cmd.Flags().StringVar(&journalPath, "journal", "", "Journal database (default: "+secrets.KeyJournalPath+")")
	return cmd
}

func printHistory(ctx context.Context, w io.Writer, path string, limit int) error {
	j, err := journal.Open(path)
	if err != nil {
		return err
	}
	defer j.Close()

	ds, err := j.Recent(ctx, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SAVED\tSENDER\tFILE\tSIZE\tCYCLE")
	for _, d := range ds {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			d.SavedAt.Local().Format("02-01-2006 15:04:05"), d.Sender, d.Path, d.Size, d.CycleID)
	}
	return tw.Flush()
}

func newSetPasswordCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set-password <email>",
		Short: "Store the mailbox password in the OS keyring",
		Long: "Reads the password from standard input and stores it in the OS keyring.\n" +
			"Set " + secrets.KeyUseKeyring + " to true and leave " + secrets.KeyPassword +
			" empty to use it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.interactive {
				fmt.Fprint(o.stdout, "Password: ")
			}
			line, err := bufio.NewReader(o.stdin).ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return errors.New("Empty password")
			}

			ring, err := secrets.OpenKeyring(keyringDir())
			if err != nil {
				return err
			}
			return ring.SetPassword(args[0], password)
		},
	}
}
