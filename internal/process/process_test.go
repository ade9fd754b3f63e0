package process

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocument = `{
	"id": "proc-1",
	"title": "Onboarding",
	"description": "New-hire onboarding process",
	"tags": ["hr", "proces"],
	"tasks": [
		{
			"id": "task-1",
			"title": "Preparation",
			"steps": [
				{
					"id": "step-1",
					"title": "Create accounts",
					"instructions": [
						{
							"id": "instr-1",
							"title": "Request AD account",
							"content": "File a ticket with IT."
						}
					]
				}
			]
		}
	],
	"steps": [
		{"id": "step-2", "title": "Welcome meeting"}
	]
}`

func TestParse(t *testing.T) {
	t.Run("full document", func(t *testing.T) {
		doc, err := Parse(strings.NewReader(sampleDocument))
		require.NoError(t, err)

		assert.Equal(t, "proc-1", doc.ID)
		assert.Equal(t, "Onboarding", doc.Title)
		assert.Equal(t, []string{"hr", "proces"}, doc.Tags)

		require.Len(t, doc.Tasks, 1)
		require.Len(t, doc.Tasks[0].Steps, 1)
		require.Len(t, doc.Tasks[0].Steps[0].Instructions, 1)
		assert.Equal(t, "File a ticket with IT.", doc.Tasks[0].Steps[0].Instructions[0].Content)

		require.Len(t, doc.Steps, 1)
		assert.Equal(t, "Welcome meeting", doc.Steps[0].Title)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		_, err := Parse(strings.NewReader(`{"title": "x", "bogus": true}`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bogus")
	})

	t.Run("missing titles are rejected", func(t *testing.T) {
		cases := []struct {
			name string
			doc  string
		}{
			{"document", `{"tasks": []}`},
			{"task", `{"title": "x", "tasks": [{"steps": []}]}`},
			{"step", `{"title": "x", "steps": [{"instructions": []}]}`},
			{"instruction", `{"title": "x", "steps": [{"title": "s", "instructions": [{"content": "c"}]}]}`},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := Parse(strings.NewReader(tc.doc))
				require.Error(t, err)
				assert.Contains(t, err.Error(), "no title")
			})
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, err := Parse(strings.NewReader("{not json"))
		require.Error(t, err)
	})
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "process.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleDocument), 0o644))

	doc, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", doc.Title)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
