/*
Copyright © 2025 jesse galley <jesse@jessegalley.net>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jessegalley/readbench/internal/history"
	"github.com/jessegalley/readbench/internal/output"
	"github.com/jessegalley/readbench/internal/stats"
)

// historyLimit caps how many runs are listed
var historyLimit int

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List runs recorded with --history-db.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := listHistory(os.Stdout); err != nil {
			exitOnError(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to list, newest first (0 lists all)")
}

// listHistory prints recorded runs in the selected output format
func listHistory(w io.Writer) error {
	if historyDB == "" {
		return fmt.Errorf("no history database given, use --history-db")
	}

	format, err := output.ValidateFormat(outFmt)
	if err != nil {
		return err
	}

	if _, err := os.Stat(historyDB); err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}

	store, err := history.Open(historyDB)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(historyLimit)
	if err != nil {
		return err
	}

	switch format {
	case output.JSONFormat:
		jsonBytes, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal json: %w", err)
		}
		fmt.Fprintln(w, string(jsonBytes))

	case output.FlatFormat:
		for _, rec := range records {
			line, err := output.FormatResult(resultOf(rec), output.FlatFormat)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%d %d %s", rec.ID, rec.Finished.Unix(), line)
		}

	default:
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("%5s  %-19s  %6s  %10s  %-10s  %6s  %8s  %12s  %10s\n",
			"id", "finished", "files", "size", "strategy", "direct", "iters", "avg (us)", "MiB/s"))
		for _, rec := range records {
			sb.WriteString(fmt.Sprintf("%5d  %-19s  %6d  %10d  %-10s  %6v  %8d  %12.2f  %10.2f\n",
				rec.ID, rec.Finished.Local().Format(time.DateTime), rec.Files, rec.FileSize,
				rec.Strategy, rec.Direct, rec.Iterations,
				float64(rec.AvgLatency.Nanoseconds())/1000, rec.Throughput))
		}
		fmt.Fprint(w, sb.String())
	}

	return nil
}

// resultOf rebuilds a printable result from a stored record
func resultOf(rec history.Record) output.Result {
	return output.Result{
		Files:     rec.Files,
		FileSize:  rec.FileSize,
		ChunkSize: rec.ChunkSize,
		Strategy:  rec.Strategy,
		Direct:    rec.Direct,
		Metrics: stats.RunMetrics{
			Iterations: rec.Iterations,
			BytesRead:  rec.BytesRead,
			Elapsed:    rec.Elapsed,
			Fallbacks:  rec.Fallbacks,
		},
	}
}
