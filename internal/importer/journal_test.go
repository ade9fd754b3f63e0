package importer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()

	journal, err := OpenJournal(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	return journal
}

func TestJournalRoundTrip(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	runID, err := journal.BeginRun(ctx, "import")
	require.NoError(t, err)

	outcomes := []Outcome{
		{TopicID: "root", State: StateCheckedIn},
		{TopicID: "childA", State: StateCreated, Err: errors.New("checkout denied")},
		{TopicID: "grandchild", State: StateAbsent},
	}

	require.NoError(t, journal.FinishRun(ctx, runID, outcomes))

	runs, err := journal.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, "import", runs[0].Kind)
	assert.Equal(t, 3, runs[0].Topics)
	assert.Equal(t, 1, runs[0].Failed)
	assert.False(t, runs[0].StartedAt.IsZero())
	assert.False(t, runs[0].FinishedAt.IsZero())

	got, err := journal.RunOutcomes(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, JournaledOutcome{TopicID: "root", State: "checked_in"}, got[0])
	assert.Equal(t, JournaledOutcome{
		TopicID: "childA", State: "created", Error: "checkout denied",
	}, got[1])
	assert.Equal(t, JournaledOutcome{TopicID: "grandchild", State: "absent"}, got[2])
}

func TestJournalRecentRunsOrder(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	first, err := journal.BeginRun(ctx, "import")
	require.NoError(t, err)
	require.NoError(t, journal.FinishRun(ctx, first, nil))

	second, err := journal.BeginRun(ctx, "delete")
	require.NoError(t, err)
	require.NoError(t, journal.FinishRun(ctx, second, nil))

	runs, err := journal.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Newest first.
	assert.Equal(t, second, runs[0].ID)
	assert.Equal(t, "delete", runs[0].Kind)
	assert.Equal(t, first, runs[1].ID)

	limited, err := journal.RecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, second, limited[0].ID)
}

func TestJournalUnfinishedRun(t *testing.T) {
	journal := newTestJournal(t)
	ctx := context.Background()

	_, err := journal.BeginRun(ctx, "import")
	require.NoError(t, err)

	runs, err := journal.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	// A crashed run has a start time but no finish.
	assert.False(t, runs[0].StartedAt.IsZero())
	assert.True(t, runs[0].FinishedAt.IsZero())
	assert.Zero(t, runs[0].Topics)
}

func TestJournalReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	journal, err := OpenJournal(path, nil)
	require.NoError(t, err)

	runID, err := journal.BeginRun(ctx, "import")
	require.NoError(t, err)
	require.NoError(t, journal.FinishRun(ctx, runID, []Outcome{{TopicID: "root", State: StateCheckedIn}}))
	require.NoError(t, journal.Close())

	// Reopening runs migrations idempotently and sees the old data.
	journal, err = OpenJournal(path, nil)
	require.NoError(t, err)
	defer journal.Close()

	runs, err := journal.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
}
