package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/digitalcoach/delphi-import/internal/delphi"
	"github.com/digitalcoach/delphi-import/internal/topictree"
)

// TopicDeleter is the slice of the API client the cascade deleter needs.
type TopicDeleter interface {
	DeleteTopic(ctx context.Context, id string) error
}

// Deleter removes a topic subtree from the remote service, children
// before parents. The tree shape is known locally from the import
// definition, so no remote listing is needed.
type Deleter struct {
	client TopicDeleter
	logger *slog.Logger
}

// NewDeleter creates a Deleter.
func NewDeleter(client TopicDeleter, logger *slog.Logger) *Deleter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Deleter{client: client, logger: logger}
}

// Run deletes the tree in post-order. A 404 counts as success so re-runs
// are idempotent. A failed delete blocks every ancestor of that node —
// no node may be deleted while any of its children still exist remotely —
// but sibling subtrees are still attempted. Outcomes are in post-order;
// StateAbsent with nil Err means the topic is gone.
func (d *Deleter) Run(ctx context.Context, root *topictree.Node) ([]Outcome, error) {
	if err := topictree.Validate(root); err != nil {
		return nil, err
	}

	plan := topictree.PostOrder(root)
	outcomes := make([]Outcome, 0, len(plan))

	// IDs of nodes that are (or may still be) present remotely.
	remaining := make(map[string]bool)

	for _, node := range plan {
		if blocked := blockedBy(node, remaining); blocked != "" {
			remaining[node.ID] = true

			d.logger.Warn("skipping delete, child still present",
				slog.String("topic_id", node.ID),
				slog.String("child_id", blocked),
			)

			outcomes = append(outcomes, Outcome{
				TopicID: node.ID,
				State:   StateCreated,
				Err:     fmt.Errorf("not deleted: child %s still exists remotely", blocked),
			})

			continue
		}

		err := d.client.DeleteTopic(ctx, node.ID)

		switch {
		case err == nil:
			d.logger.Debug("topic deleted", slog.String("topic_id", node.ID))

		case errors.Is(err, delphi.ErrNotFound):
			// Already absent — exactly the state we want.
			d.logger.Debug("topic already absent", slog.String("topic_id", node.ID))
			err = nil

		default:
			var apiErr *delphi.APIError
			if !errors.As(err, &apiErr) {
				outcomes = append(outcomes, Outcome{TopicID: node.ID, State: StateCreated, Err: err})
				return outcomes, err
			}

			d.logger.Error("topic delete failed",
				slog.String("topic_id", node.ID),
				slog.String("error", err.Error()),
			)

			remaining[node.ID] = true
			err = fmt.Errorf("deleting topic %s: %w", node.ID, err)
		}

		state := StateAbsent
		if err != nil {
			state = StateCreated
		}

		outcomes = append(outcomes, Outcome{TopicID: node.ID, State: state, Err: err})
	}

	d.logger.Info("cascade delete finished",
		slog.Int("topics", len(outcomes)),
		slog.Int("failed", FailedCount(outcomes)),
	)

	return outcomes, nil
}

// blockedBy returns the ID of a child still present remotely, or "".
func blockedBy(node *topictree.Node, remaining map[string]bool) string {
	for _, child := range node.Children {
		if remaining[child.ID] {
			return child.ID
		}
	}

	return ""
}
