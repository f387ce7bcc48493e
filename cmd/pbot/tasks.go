package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/quailyquaily/pbot/internal/clifmt"
	"github.com/quailyquaily/pbot/internal/durations"
	"github.com/quailyquaily/pbot/internal/fsstore"
	"github.com/quailyquaily/pbot/internal/logutil"
	"github.com/quailyquaily/pbot/internal/statepaths"
	"github.com/quailyquaily/pbot/internal/taskstore"
	"github.com/spf13/cobra"
)

const clearAll = "all"

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and maintain stored tasks without a running bot",
	}
	cmd.AddCommand(newTasksListCmd())
	cmd.AddCommand(newTasksClearCmd())
	cmd.AddCommand(newTasksBackupCmd())
	return cmd
}

func openStore() (*taskstore.Store, error) {
	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return nil, err
	}
	return taskstore.New(statepaths.DataDir(), taskstore.Options{Logger: logger}), nil
}

func newTasksListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored task records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(cmd.Flag("format").Value.String())
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			var records []taskstore.Record
			for _, c := range taskstore.Collections() {
				records = append(records, store.All(c)...)
			}
			return writeRecords(cmd.OutOrStdout(), format, records, time.Now())
		},
	}
	cmd.Flags().String("format", formatTable, "Output format: table|json|yaml.")
	return cmd
}

func writeRecords(out io.Writer, format string, records []taskstore.Record, now time.Time) error {
	if format != formatTable {
		if records == nil {
			records = []taskstore.Record{}
		}
		return writeStructured(out, format, records)
	}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			string(r.Kind),
			strconv.FormatInt(r.ChatID, 10),
			remainingLabel(r, now),
			r.Summary(),
		})
	}
	clifmt.PrintTable(out, clifmt.TableOptions{
		Title:     "Stored tasks",
		Headers:   []string{"ID", "TYPE", "CHAT", "LEFT", "SUMMARY"},
		Rows:      rows,
		EmptyText: "No stored tasks.",
	})
	return nil
}

func remainingLabel(r taskstore.Record, now time.Time) string {
	switch r.Kind {
	case taskstore.KindMention, taskstore.KindSpam:
		return "-"
	}
	left := r.Remaining(now)
	if left <= 0 {
		return "expired"
	}
	return durations.Format(durations.Ceil(left))
}

func newTasksClearCmd() *cobra.Command {
	names := make([]string, 0, len(taskstore.Collections())+1)
	for _, c := range taskstore.Collections() {
		names = append(names, string(c))
	}
	names = append(names, clearAll)

	return &cobra.Command{
		Use:       "clear <collection|all>",
		Short:     "Delete every record in a collection",
		Long:      "Delete every record in a collection. Refuses while the bot is running.\nCollections: " + strings.Join(names, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := clearTargets(args[0])
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			lockPath, err := fsstore.LockPathFor(statepaths.FileStateDir(), statepaths.RunLockKey())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), runLockWait)
			defer cancel()

			out := cmd.OutOrStdout()
			err = fsstore.WithLock(ctx, lockPath, func() error {
				for _, c := range targets {
					n, err := store.Clear(c)
					if err != nil {
						return fmt.Errorf("clear %s: %w", c, err)
					}
					_, _ = fmt.Fprintf(out, "%s %s: %d removed\n", clifmt.Success("cleared"), c, n)
				}
				return nil
			})
			if errors.Is(err, fsstore.ErrLockTimeout) {
				return fmt.Errorf("pbot is running, stop it before clearing: %w", err)
			}
			return err
		},
	}
}

func clearTargets(raw string) ([]taskstore.Collection, error) {
	if strings.EqualFold(strings.TrimSpace(raw), clearAll) {
		return taskstore.Collections(), nil
	}
	c, err := taskstore.ParseCollection(raw)
	if err != nil {
		return nil, err
	}
	return []taskstore.Collection{c}, nil
}

func newTasksBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot every collection into the backups directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(cmd.Flag("format").Value.String())
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			res, err := store.Backup(cmd.Context(), statepaths.BackupsDir())
			if err != nil {
				return err
			}
			if format != formatTable {
				return writeStructured(cmd.OutOrStdout(), format, res)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d files)\n%s\n",
				clifmt.Success("backup"), res.Name, len(res.Files), clifmt.Dim(res.Dir))
			return nil
		},
	}
	cmd.Flags().String("format", formatTable, "Output format: table|json|yaml.")
	return cmd
}
