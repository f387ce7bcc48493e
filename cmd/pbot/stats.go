package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/quailyquaily/pbot/internal/clifmt"
	"github.com/quailyquaily/pbot/internal/taskstore"
	"github.com/spf13/cobra"
)

const topCommandsShown = 10

var counterLabels = []struct {
	key   string
	label string
}{
	{taskstore.CounterTimersCreated, "timers"},
	{taskstore.CounterAlarmsCreated, "wake alarms"},
	{taskstore.CounterRemindersCreated, "reminders"},
	{taskstore.CounterMentionsCreated, "mention runs"},
	{taskstore.CounterSpamCreated, "spam runs"},
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show command usage and task counters",
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
			return writeStats(cmd.OutOrStdout(), format, store.Stats())
		},
	}
	cmd.Flags().String("format", formatTable, "Output format: table|json|yaml.")
	return cmd
}

func writeStats(out io.Writer, format string, st taskstore.Stats) error {
	if format != formatTable {
		return writeStructured(out, format, st)
	}

	_, _ = fmt.Fprintln(out, clifmt.Pair("Total commands", st.TotalCommands))
	last := "never"
	if st.LastCommandTime != nil {
		last = st.LastCommandTime.UTC().Format("2006-01-02 15:04:05 UTC")
	}
	_, _ = fmt.Fprintln(out, clifmt.Pair("Last command", last))
	_, _ = fmt.Fprintln(out)

	top := st.TopCommands(topCommandsShown)
	rows := make([][]string, 0, len(top))
	for _, u := range top {
		rows = append(rows, []string{"/" + u.Command, strconv.FormatInt(u.Count, 10)})
	}
	clifmt.PrintTable(out, clifmt.TableOptions{
		Title:     "Top commands",
		Headers:   []string{"COMMAND", "USES"},
		Rows:      rows,
		EmptyText: "No commands recorded.",
	})
	_, _ = fmt.Fprintln(out)

	rows = rows[:0]
	for _, c := range counterLabels {
		rows = append(rows, []string{c.label, strconv.FormatInt(st.Counters[c.key], 10)})
	}
	clifmt.PrintTable(out, clifmt.TableOptions{
		Title:   "Created",
		Headers: []string{"TYPE", "COUNT"},
		Rows:    rows,
	})
	return nil
}
