// Package process parses hierarchical process documents and maps them to
// the topic tree the importer consumes. A process document is a tree of
// tasks, steps, and instructions; each level becomes a typed topic.
package process

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Document is the root of a process definition.
type Document struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	TopicType   string   `json:"topicType"`
	Tags        []string `json:"tags"`
	Tasks       []Task   `json:"tasks"`
	Steps       []Step   `json:"steps"`
}

// Task is a major section of a process.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	TopicType   string   `json:"topicType"`
	Tags        []string `json:"tags"`
	Steps       []Step   `json:"steps"`
}

// Step is a single step within a process or task.
type Step struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	TopicType    string        `json:"topicType"`
	Tags         []string      `json:"tags"`
	Instructions []Instruction `json:"instructions"`
}

// Instruction is the detailed guidance attached to a step.
type Instruction struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	TopicType string   `json:"topicType"`
	Tags      []string `json:"tags"`
}

// Parse decodes a process document from r and checks its structure.
func Parse(r io.Reader) (*Document, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("process: decoding document: %w", err)
	}

	if err := validate(&doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

// ParseFile reads and parses a process document from disk.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("process: opening %s: %w", path, err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("process: %s: %w", path, err)
	}

	return doc, nil
}

// validate rejects structurally broken documents before any network call.
func validate(doc *Document) error {
	if doc.Title == "" {
		return fmt.Errorf("process: document has no title")
	}

	for i, task := range doc.Tasks {
		if task.Title == "" {
			return fmt.Errorf("process: task %d has no title", i)
		}

		for j, step := range task.Steps {
			if err := validateStep(step, fmt.Sprintf("task %d step %d", i, j)); err != nil {
				return err
			}
		}
	}

	for i, step := range doc.Steps {
		if err := validateStep(step, fmt.Sprintf("step %d", i)); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(step Step, where string) error {
	if step.Title == "" {
		return fmt.Errorf("process: %s has no title", where)
	}

	for k, instr := range step.Instructions {
		if instr.Title == "" {
			return fmt.Errorf("process: %s instruction %d has no title", where, k)
		}
	}

	return nil
}
