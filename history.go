package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-photos/internal/journal"
)

const defaultHistoryLimit = 50

var flagHistoryLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transfer outcomes from the journal",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().IntVar(&flagHistoryLimit, "limit", defaultHistoryLimit, "maximum number of entries")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	if resolvedCfg == nil || resolvedCfg.JournalPath == "" {
		return errors.New("journal disabled: set journal_path in the config file")
	}

	if flagHistoryLimit < 1 {
		return fmt.Errorf("--limit must be positive, got %d", flagHistoryLimit)
	}

	logger := buildLogger(resolvedCfg)

	j, err := journal.Open(cmd.Context(), resolvedCfg.JournalPath, logger)
	if err != nil {
		return err
	}
	defer j.Close()

	entries, err := j.Recent(cmd.Context(), flagHistoryLimit)
	if err != nil {
		return err
	}

	return printHistory(cmd.OutOrStdout(), entries)
}

func printHistory(w io.Writer, entries []journal.Entry) error {
	if flagJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if entries == nil {
			entries = []journal.Entry{}
		}

		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}

		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No transfers recorded.")
		return nil
	}

	rows := make([][]string, 0, len(entries))

	for i := range entries {
		e := &entries[i]

		state := e.State
		if e.DryRun {
			state += " (dry run)"
		}

		rows = append(rows, []string{
			formatTime(e.RecordedAt.Local()),
			shortID(e.RunID),
			e.Name,
			state,
			strconv.FormatBool(e.Succeeded),
			e.Reason,
		})
	}

	printTable(w, []string{"TIME", "RUN", "NAME", "STATE", "OK", "REASON"}, rows)

	return nil
}

// shortID abbreviates a run UUID for table display.
func shortID(id string) string {
	const n = 8
	if len(id) <= n {
		return id
	}

	return id[:n]
}
