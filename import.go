package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/digitalcoach/delphi-import/internal/importer"
	"github.com/digitalcoach/delphi-import/internal/process"
	"github.com/digitalcoach/delphi-import/internal/topictree"
)

func newImportCmd() *cobra.Command {
	var (
		replace      bool
		skipCheckout bool
		comment      string
	)

	cmd := &cobra.Command{
		Use:   "import <process.json>",
		Short: "Import a process document as a topic tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := importer.Options{
				SkipCheckout:   resolvedCfg.Import.SkipCheckout,
				Replace:        resolvedCfg.Import.Replace,
				CheckinComment: resolvedCfg.Import.CheckinComment,
			}

			// CLI flags override the config file when explicitly set.
			if cmd.Flags().Changed("replace") {
				opts.Replace = replace
			}

			if cmd.Flags().Changed("skip-checkout") {
				opts.SkipCheckout = skipCheckout
			}

			if cmd.Flags().Changed("comment") {
				opts.CheckinComment = comment
			}

			return runImport(args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "delete the existing subtree before importing")
	cmd.Flags().BoolVar(&skipCheckout, "skip-checkout", false, "skip checkout/checkin around updates")
	cmd.Flags().StringVar(&comment, "comment", "", "checkin comment")

	return cmd
}

func runImport(path string, opts importer.Options) error {
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

	// Replace mode clears the remote subtree first so the import starts
	// from a clean slate instead of colliding on existing topic IDs.
	if opts.Replace {
		statusf("Deleting existing subtree rooted at %s...\n", root.ID)

		deleter := importer.NewDeleter(client, logger)

		outcomes, err := deleter.Run(ctx, root)
		if err != nil {
			return err
		}

		if failed := importer.FailedCount(outcomes); failed > 0 {
			printOutcomes(outcomes)

			return fmt.Errorf("replace: %d topics could not be deleted", failed)
		}
	}

	statusf("Importing %d topics from %s...\n", topictree.Count(root), path)

	runID, err := journal.BeginRun(ctx, "import")
	if err != nil {
		return err
	}

	imp := importer.New(client, opts, logger)

	outcomes, runErr := imp.Run(ctx, root)

	if err := journal.FinishRun(ctx, runID, outcomes); err != nil {
		logger.Warn("journal write failed", "error", err)
	}

	printOutcomes(outcomes)

	if runErr != nil {
		return runErr
	}

	if failed := importer.FailedCount(outcomes); failed > 0 {
		statusf("%d of %d topics failed.\n", failed, len(outcomes))

		return errPartialFailure
	}

	statusf("Imported %d topics.\n", len(outcomes))

	return nil
}

// loadTree parses a process document and maps it to a validated topic tree.
func loadTree(path string) (*topictree.Node, error) {
	doc, err := process.ParseFile(path)
	if err != nil {
		return nil, err
	}

	root := process.NewMapper(nil).Map(doc)

	if err := topictree.Validate(root); err != nil {
		return nil, err
	}

	return root, nil
}

// openJournal opens the run journal at the configured path.
func openJournal(logger *slog.Logger) (*importer.Journal, error) {
	return importer.OpenJournal(resolvedCfg.Import.Journal, logger)
}

// outcomeOutput is the JSON schema for per-topic results.
type outcomeOutput struct {
	TopicID string `json:"topic_id"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
}

// printOutcomes renders per-topic results as a table, or JSON with --json.
func printOutcomes(outcomes []importer.Outcome) {
	if flagJSON {
		out := make([]outcomeOutput, 0, len(outcomes))

		for _, o := range outcomes {
			row := outcomeOutput{TopicID: o.TopicID, State: o.State.String()}
			if o.Err != nil {
				row.Error = o.Err.Error()
			}

			out = append(out, row)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)

		return
	}

	rows := make([][]string, 0, len(outcomes))

	for _, o := range outcomes {
		errText := ""
		if o.Err != nil {
			errText = o.Err.Error()
		}

		rows = append(rows, []string{o.TopicID, o.State.String(), errText})
	}

	printTable(os.Stdout, []string{"TOPIC", "STATE", "ERROR"}, rows)
}
