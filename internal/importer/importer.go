// Package importer drives the per-topic import state machine and the
// cascading delete over a topic tree. Both walk an immutable tree snapshot
// in a pre-computed order and record a per-topic outcome; one bad topic
// abandons its subtree but never aborts the run.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/digitalcoach/delphi-import/internal/delphi"
	"github.com/digitalcoach/delphi-import/internal/topictree"
)

// State is how far a topic progressed through the import state machine.
type State int

const (
	StateAbsent State = iota
	StateCreated
	StateCheckedOut
	StateUpdated
	StateCheckedIn
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateCreated:
		return "created"
	case StateCheckedOut:
		return "checked_out"
	case StateUpdated:
		return "updated"
	case StateCheckedIn:
		return "checked_in"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome records how one topic fared. Err is nil on success; a nil Err
// with StateAbsent means the topic was skipped because an ancestor failed.
type Outcome struct {
	TopicID string
	State   State
	Err     error
}

// FailedCount returns the number of outcomes carrying an error.
func FailedCount(outcomes []Outcome) int {
	n := 0

	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}

	return n
}

// TopicWriter is the slice of the API client the importer needs.
type TopicWriter interface {
	CreateTopic(ctx context.Context, id, title, typeID, parentID string) (string, error)
	Checkout(ctx context.Context, id string) error
	Checkin(ctx context.Context, id, comment string) error
	UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error
	UpdatePart(ctx context.Context, topicID, name string, content map[string]any) error
	AddTag(ctx context.Context, topicID, tag string) error
	AddRelation(ctx context.Context, topicID string, rel delphi.Relation) error
}

// Options control the import workflow.
type Options struct {
	// SkipCheckout drops the checkout and checkin steps; part and metadata
	// updates then follow the create call directly. No other behavior
	// changes.
	SkipCheckout bool

	// Replace marks this import as a re-run over a cascade-deleted subtree:
	// a 409 on create is then a recoverable precondition, not a failure.
	Replace bool

	// CheckinComment is recorded on every checkin.
	CheckinComment string
}

// Importer walks a topic tree in pre-order and runs each node through
// create → checkout → update → checkin.
type Importer struct {
	client TopicWriter
	opts   Options
	logger *slog.Logger
}

// New creates an Importer.
func New(client TopicWriter, opts Options, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.CheckinComment == "" {
		opts.CheckinComment = "Automated process import"
	}

	return &Importer{client: client, opts: opts, logger: logger}
}

// Run imports the tree. The returned outcomes are in pre-order, one per
// node. Per-topic API errors are recorded and the run continues with
// siblings; auth, config, and network errors abort the run immediately.
func (imp *Importer) Run(ctx context.Context, root *topictree.Node) ([]Outcome, error) {
	if err := topictree.Validate(root); err != nil {
		return nil, err
	}

	plan := topictree.PreOrder(root)
	outcomes := make([]Outcome, 0, len(plan))

	// IDs of nodes whose subtree has been abandoned.
	abandoned := make(map[string]bool)

	for _, node := range plan {
		if abandoned[node.ParentID] {
			abandoned[node.ID] = true

			imp.logger.Debug("skipping topic, ancestor failed",
				slog.String("topic_id", node.ID),
			)

			outcomes = append(outcomes, Outcome{TopicID: node.ID, State: StateAbsent})

			continue
		}

		state, err := imp.importNode(ctx, node)

		if err != nil {
			var apiErr *delphi.APIError
			if !errors.As(err, &apiErr) {
				// Not a per-topic failure — fatal for the run.
				outcomes = append(outcomes, Outcome{TopicID: node.ID, State: state, Err: err})
				return outcomes, err
			}

			imp.logger.Error("topic import failed",
				slog.String("topic_id", node.ID),
				slog.String("title", node.Title),
				slog.String("state", state.String()),
				slog.String("error", err.Error()),
			)

			abandoned[node.ID] = true
		}

		outcomes = append(outcomes, Outcome{TopicID: node.ID, State: state, Err: err})
	}

	imp.logger.Info("import finished",
		slog.Int("topics", len(outcomes)),
		slog.Int("failed", FailedCount(outcomes)),
	)

	return outcomes, nil
}

// importNode runs one topic through the state machine and returns the
// state it reached.
func (imp *Importer) importNode(ctx context.Context, node *topictree.Node) (State, error) {
	state := StateAbsent

	imp.logger.Debug("importing topic",
		slog.String("topic_id", node.ID),
		slog.String("title", node.Title),
		slog.String("parent_id", node.ParentID),
	)

	_, err := imp.client.CreateTopic(ctx, node.ID, node.Title, node.TypeID, node.ParentID)
	if err != nil {
		if imp.opts.Replace && errors.Is(err, delphi.ErrConflict) {
			// Replace semantics: the topic surviving a prior run is a
			// precondition we can work with, not a failure.
			imp.logger.Debug("topic already exists, continuing (replace)",
				slog.String("topic_id", node.ID),
			)
		} else {
			return state, fmt.Errorf("creating topic %s: %w", node.ID, err)
		}
	}

	state = StateCreated

	if !imp.opts.SkipCheckout {
		if err := imp.client.Checkout(ctx, node.ID); err != nil {
			// Checked out by this run already — fine, the lock is ours.
			if !errors.Is(err, delphi.ErrConflict) {
				return state, fmt.Errorf("checking out topic %s: %w", node.ID, err)
			}
		}

		state = StateCheckedOut
	}

	if err := imp.updateNode(ctx, node); err != nil {
		return state, err
	}

	// Without checkout/checkin the topic never leaves the created state;
	// updated is a waypoint between the lock operations.
	if !imp.opts.SkipCheckout {
		state = StateUpdated

		if err := imp.client.Checkin(ctx, node.ID, imp.opts.CheckinComment); err != nil {
			return state, fmt.Errorf("checking in topic %s: %w", node.ID, err)
		}

		state = StateCheckedIn
	}

	return state, nil
}

// updateNode pushes metadata, parts, tags, and child relations, one call
// each. Failures do not roll back the create.
func (imp *Importer) updateNode(ctx context.Context, node *topictree.Node) error {
	if len(node.Metadata) > 0 {
		if err := imp.client.UpdateMetadata(ctx, node.ID, node.Metadata); err != nil {
			return fmt.Errorf("updating metadata of topic %s: %w", node.ID, err)
		}
	}

	for _, name := range sortedPartNames(node.Parts) {
		if err := imp.client.UpdatePart(ctx, node.ID, name, node.Parts[name]); err != nil {
			return fmt.Errorf("updating part %s of topic %s: %w", name, node.ID, err)
		}
	}

	for _, tag := range node.Tags {
		if err := imp.client.AddTag(ctx, node.ID, tag); err != nil {
			return fmt.Errorf("tagging topic %s with %q: %w", node.ID, tag, err)
		}
	}

	for _, child := range node.Children {
		rel := delphi.Relation{Role: "child", TargetID: child.ID}
		if err := imp.client.AddRelation(ctx, node.ID, rel); err != nil {
			return fmt.Errorf("relating topic %s to %s: %w", node.ID, child.ID, err)
		}
	}

	return nil
}

// sortedPartNames returns part names in a stable order so the call
// sequence is deterministic.
func sortedPartNames(parts map[string]map[string]any) []string {
	names := make([]string, 0, len(parts))
	for name := range parts {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
