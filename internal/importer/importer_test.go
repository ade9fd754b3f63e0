package importer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitalcoach/delphi-import/internal/delphi"
	"github.com/digitalcoach/delphi-import/internal/topictree"
)

// fakeWriter records every API call and fails the operations listed in
// failOn. Keys are "op:topicID".
type fakeWriter struct {
	calls  []string
	failOn map[string]error
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{failOn: map[string]error{}}
}

func (f *fakeWriter) fail(op, id string, err error) {
	f.failOn[op+":"+id] = err
}

func (f *fakeWriter) record(op, id string) error {
	key := op + ":" + id
	f.calls = append(f.calls, key)

	return f.failOn[key]
}

func (f *fakeWriter) CreateTopic(_ context.Context, id, _, _, _ string) (string, error) {
	return "v-" + id, f.record("create", id)
}

func (f *fakeWriter) Checkout(_ context.Context, id string) error {
	return f.record("checkout", id)
}

func (f *fakeWriter) Checkin(_ context.Context, id, _ string) error {
	return f.record("checkin", id)
}

func (f *fakeWriter) UpdateMetadata(_ context.Context, id string, _ map[string]any) error {
	return f.record("metadata", id)
}

func (f *fakeWriter) UpdatePart(_ context.Context, id, name string, _ map[string]any) error {
	return f.record("part/"+name, id)
}

func (f *fakeWriter) AddTag(_ context.Context, id, tag string) error {
	return f.record("tag/"+tag, id)
}

func (f *fakeWriter) AddRelation(_ context.Context, id string, rel delphi.Relation) error {
	return f.record("relation/"+rel.TargetID, id)
}

// apiError builds a *delphi.APIError for the given status.
func apiError(status int) error {
	return &delphi.APIError{StatusCode: status, Err: statusSentinel(status)}
}

func statusSentinel(status int) error {
	switch status {
	case http.StatusNotFound:
		return delphi.ErrNotFound
	case http.StatusConflict:
		return delphi.ErrConflict
	case http.StatusLocked:
		return delphi.ErrLocked
	default:
		return delphi.ErrServerError
	}
}

// importTree returns root → {childA → {grandchild}, childB}.
func importTree() *topictree.Node {
	grandchild := &topictree.Node{
		ID: "grandchild", Title: "Grandchild", TypeID: "type-i", ParentID: "childA",
		Parts: map[string]map[string]any{"contentPart": {"text": "hello"}},
	}
	childA := &topictree.Node{
		ID: "childA", Title: "Child A", TypeID: "type-s", ParentID: "root",
		Children: []*topictree.Node{grandchild},
	}
	childB := &topictree.Node{
		ID: "childB", Title: "Child B", TypeID: "type-s", ParentID: "root",
		Tags: []string{"proces"},
	}

	return &topictree.Node{
		ID: "root", Title: "Root", TypeID: "type-h",
		Metadata: map[string]any{"description": "top"},
		Children: []*topictree.Node{childA, childB},
	}
}

func TestImporterRun(t *testing.T) {
	t.Run("happy path reaches checked_in everywhere", func(t *testing.T) {
		writer := newFakeWriter()
		imp := New(writer, Options{}, nil)

		outcomes, err := imp.Run(context.Background(), importTree())
		require.NoError(t, err)
		require.Len(t, outcomes, 4)

		for _, o := range outcomes {
			assert.NoError(t, o.Err)
			assert.Equal(t, StateCheckedIn, o.State, "topic %s", o.TopicID)
		}

		// Pre-order: parents are created before their children.
		assert.Equal(t, []string{"root", "childA", "grandchild", "childB"},
			outcomeIDs(outcomes))

		// Full state machine for the root.
		assert.Subset(t, writer.calls, []string{
			"create:root", "checkout:root", "metadata:root",
			"relation/childA:root", "relation/childB:root", "checkin:root",
		})
		assert.Contains(t, writer.calls, "part/contentPart:grandchild")
		assert.Contains(t, writer.calls, "tag/proces:childB")
	})

	t.Run("failed create abandons the subtree, siblings continue", func(t *testing.T) {
		writer := newFakeWriter()
		writer.fail("create", "childA", apiError(http.StatusInternalServerError))

		imp := New(writer, Options{}, nil)

		outcomes, err := imp.Run(context.Background(), importTree())
		require.NoError(t, err)
		require.Len(t, outcomes, 4)

		byID := outcomesByID(outcomes)

		assert.Equal(t, StateCheckedIn, byID["root"].State)
		require.Error(t, byID["childA"].Err)
		assert.Equal(t, StateAbsent, byID["childA"].State)

		// Skipped descendant: no error of its own, nothing attempted.
		assert.NoError(t, byID["grandchild"].Err)
		assert.Equal(t, StateAbsent, byID["grandchild"].State)
		assert.NotContains(t, writer.calls, "create:grandchild")

		// The sibling subtree is unaffected.
		assert.NoError(t, byID["childB"].Err)
		assert.Equal(t, StateCheckedIn, byID["childB"].State)

		assert.Equal(t, 1, FailedCount(outcomes))
	})

	t.Run("checkin failure leaves the topic updated", func(t *testing.T) {
		writer := newFakeWriter()
		writer.fail("checkin", "childB", apiError(http.StatusLocked))

		imp := New(writer, Options{}, nil)

		outcomes, err := imp.Run(context.Background(), importTree())
		require.NoError(t, err)

		byID := outcomesByID(outcomes)
		require.Error(t, byID["childB"].Err)
		assert.Equal(t, StateUpdated, byID["childB"].State)
	})

	t.Run("skip checkout issues no checkout or checkin", func(t *testing.T) {
		writer := newFakeWriter()
		imp := New(writer, Options{SkipCheckout: true}, nil)

		outcomes, err := imp.Run(context.Background(), importTree())
		require.NoError(t, err)

		// Created is the terminal success state when the lock steps are
		// skipped.
		for _, o := range outcomes {
			assert.NoError(t, o.Err)
			assert.Equal(t, StateCreated, o.State)
		}

		for _, call := range writer.calls {
			assert.NotContains(t, call, "checkout:")
			assert.NotContains(t, call, "checkin:")
		}
	})

	t.Run("conflict on create fails without replace", func(t *testing.T) {
		writer := newFakeWriter()
		writer.fail("create", "root", apiError(http.StatusConflict))

		imp := New(writer, Options{}, nil)

		outcomes, err := imp.Run(context.Background(), importTree())
		require.NoError(t, err)

		byID := outcomesByID(outcomes)
		require.Error(t, byID["root"].Err)
		assert.ErrorIs(t, byID["root"].Err, delphi.ErrConflict)
		// The whole tree hangs off the root.
		assert.Equal(t, 1, FailedCount(outcomes))
	})

	t.Run("conflict on create is tolerated with replace", func(t *testing.T) {
		writer := newFakeWriter()
		writer.fail("create", "root", apiError(http.StatusConflict))

		imp := New(writer, Options{Replace: true}, nil)

		outcomes, err := imp.Run(context.Background(), importTree())
		require.NoError(t, err)

		byID := outcomesByID(outcomes)
		assert.NoError(t, byID["root"].Err)
		assert.Equal(t, StateCheckedIn, byID["root"].State)
	})

	t.Run("conflict on checkout means the lock is already held", func(t *testing.T) {
		writer := newFakeWriter()
		writer.fail("checkout", "root", apiError(http.StatusConflict))

		imp := New(writer, Options{}, nil)

		outcomes, err := imp.Run(context.Background(), importTree())
		require.NoError(t, err)
		assert.NoError(t, outcomesByID(outcomes)["root"].Err)
	})

	t.Run("non-API error aborts the run", func(t *testing.T) {
		writer := newFakeWriter()
		authErr := fmt.Errorf("wrapped: %w", delphi.ErrAuth)
		writer.fail("create", "childA", authErr)

		imp := New(writer, Options{}, nil)

		outcomes, err := imp.Run(context.Background(), importTree())
		require.Error(t, err)
		assert.ErrorIs(t, err, delphi.ErrAuth)

		// Run stopped at childA: childB and grandchild were never reached.
		assert.Equal(t, []string{"root", "childA"}, outcomeIDs(outcomes))
		assert.NotContains(t, writer.calls, "create:childB")
	})

	t.Run("invalid tree is rejected up front", func(t *testing.T) {
		writer := newFakeWriter()
		imp := New(writer, Options{}, nil)

		_, err := imp.Run(context.Background(), nil)
		require.Error(t, err)
		assert.Empty(t, writer.calls)
	})

	t.Run("custom checkin comment is passed through", func(t *testing.T) {
		var gotComment string

		writer := newFakeWriter()
		imp := New(&commentSpy{fakeWriter: writer, comment: &gotComment},
			Options{CheckinComment: "release 2"}, nil)

		_, err := imp.Run(context.Background(), &topictree.Node{
			ID: "solo", Title: "Solo", TypeID: "type-h",
		})
		require.NoError(t, err)
		assert.Equal(t, "release 2", gotComment)
	})
}

// commentSpy wraps fakeWriter to capture the checkin comment.
type commentSpy struct {
	*fakeWriter
	comment *string
}

func (s *commentSpy) Checkin(ctx context.Context, id, comment string) error {
	*s.comment = comment

	return s.fakeWriter.Checkin(ctx, id, comment)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "absent", StateAbsent.String())
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "checked_out", StateCheckedOut.String())
	assert.Equal(t, "updated", StateUpdated.String())
	assert.Equal(t, "checked_in", StateCheckedIn.String())
}

func TestFailedCount(t *testing.T) {
	outcomes := []Outcome{
		{TopicID: "a"},
		{TopicID: "b", Err: errors.New("x")},
		{TopicID: "c", Err: errors.New("y")},
	}

	assert.Equal(t, 2, FailedCount(outcomes))
	assert.Equal(t, 0, FailedCount(nil))
}

func outcomeIDs(outcomes []Outcome) []string {
	ids := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		ids = append(ids, o.TopicID)
	}

	return ids
}

func outcomesByID(outcomes []Outcome) map[string]Outcome {
	byID := make(map[string]Outcome, len(outcomes))
	for _, o := range outcomes {
		byID[o.TopicID] = o
	}

	return byID
}
