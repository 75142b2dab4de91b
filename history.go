package main

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/clouddrive-go/internal/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transfer outcomes",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().Int("limit", history.DefaultLimit, "number of entries to show")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	return withApp(cmd.Context(), func(a *app) error {
		if a.history == nil {
			return errors.New("transfer history is disabled ([history] enabled = false)")
		}

		entries, err := a.history.Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if a.cc.Flags.JSON {
			if entries == nil {
				entries = []history.Entry{}
			}

			return printJSON(a.cc.Stdout, entries)
		}

		printHistoryTable(a.cc.Stdout, entries)

		return nil
	})
}

func printHistoryTable(w io.Writer, entries []history.Entry) {
	if len(entries) == 0 {
		io.WriteString(w, "No transfers recorded.\n")
		return
	}

	headers := []string{"FINISHED", "KIND", "STATUS", "SIZE", "NAME", "ERROR"}
	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		size := "-"
		if e.Bytes > 0 {
			size = formatSize(e.Bytes)
		}

		rows = append(rows, []string{
			formatTime(e.FinishedAt), e.Kind, e.Status, size, e.Name, e.Error,
		})
	}

	printTable(w, headers, rows)
}
