package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent import and delete runs",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runStatus(limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")

	return cmd
}

// runOutput is the JSON schema for `status --json`.
type runOutput struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Topics     int       `json:"topics"`
	Failed     int       `json:"failed"`
}

func runStatus(limit int) error {
	logger := buildLogger()
	ctx := context.Background()

	journal, err := openJournal(logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	runs, err := journal.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}

	if flagJSON {
		out := make([]runOutput, 0, len(runs))

		for _, r := range runs {
			out = append(out, runOutput{
				ID:         r.ID,
				Kind:       r.Kind,
				StartedAt:  r.StartedAt,
				FinishedAt: r.FinishedAt,
				Topics:     r.Topics,
				Failed:     r.Failed,
			})
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")

		return nil
	}

	rows := make([][]string, 0, len(runs))

	for _, r := range runs {
		finished := "-"
		if !r.FinishedAt.IsZero() {
			finished = formatTime(r.FinishedAt)
		}

		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			r.Kind,
			formatTime(r.StartedAt),
			finished,
			strconv.Itoa(r.Topics),
			strconv.Itoa(r.Failed),
		})
	}

	printTable(os.Stdout, []string{"RUN", "KIND", "STARTED", "FINISHED", "TOPICS", "FAILED"}, rows)

	return nil
}
