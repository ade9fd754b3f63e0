package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/digitalcoach/delphi-import/internal/importer"
	"github.com/digitalcoach/delphi-import/internal/topictree"
)

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <process.json>",
		Short: "Delete the topic tree mapped from a process document",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runDelete(args[0])
		},
	}
}

func runDelete(path string) error {
	logger := buildLogger()
	ctx := context.Background()

	root, err := loadTree(path)
	if err != nil {
		return err
	}

	client, err := newClient(logger)
	if err != nil {
		return err
	}

	journal, err := openJournal(logger)
	if err != nil {
		return err
	}
	defer journal.Close()

	statusf("Deleting %d topics rooted at %s...\n", topictree.Count(root), root.ID)

	runID, err := journal.BeginRun(ctx, "delete")
	if err != nil {
		return err
	}

	deleter := importer.NewDeleter(client, logger)

	outcomes, runErr := deleter.Run(ctx, root)

	if err := journal.FinishRun(ctx, runID, outcomes); err != nil {
		logger.Warn("journal write failed", "error", err)
	}

	printOutcomes(outcomes)

	if runErr != nil {
		return runErr
	}

	if failed := importer.FailedCount(outcomes); failed > 0 {
		statusf("%d of %d topics could not be deleted.\n", failed, len(outcomes))

		return errPartialFailure
	}

	statusf("Deleted %d topics.\n", len(outcomes))

	return nil
}
