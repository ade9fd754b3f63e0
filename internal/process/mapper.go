package process

import (
	"github.com/google/uuid"

	"github.com/digitalcoach/delphi-import/internal/topictree"
)

// Topic type identifiers for the Digital Coach content model. The names
// match the titles shown in the CMS type picker.
const (
	TypeHomepage    = "a1b2c3d4-e5f6-47a8-b9c0-d1e2f3a4b5c6"
	TypeProcessPage = "b2c3d4e5-f6a7-48b9-c0d1-e2f3a4b5c6d7"
	TypeStep        = "c3d4e5f6-a7b8-49ca-d1e2-f3a4b5c6d7e8"
	TypeInstruction = "d4e5f6a7-b8c9-4adb-e2f3-a4b5c6d7e8f9"
)

// DefaultTopicTypes maps a topicType name in the document to its type ID.
var DefaultTopicTypes = map[string]string{
	"Digitale Coach Homepagina":   TypeHomepage,
	"Digitale Coach Procespagina": TypeProcessPage,
	"Digitale Coach Stap":         TypeStep,
	"Digitale Coach Instructie":   TypeInstruction,
	"Task":                        TypeProcessPage,
}

// Mapper translates a process document into a topic tree. TopicTypes can
// be overridden per deployment; nil falls back to DefaultTopicTypes.
type Mapper struct {
	topicTypes map[string]string

	// newID generates IDs for nodes the document leaves unidentified.
	// Tests override it for deterministic trees.
	newID func() string
}

// NewMapper creates a Mapper.
func NewMapper(topicTypes map[string]string) *Mapper {
	if topicTypes == nil {
		topicTypes = DefaultTopicTypes
	}

	return &Mapper{
		topicTypes: topicTypes,
		newID:      func() string { return uuid.NewString() },
	}
}

// Map builds the topic tree for a document. The returned tree satisfies
// topictree.Validate: stable unique IDs, parent linkage, source order.
func (m *Mapper) Map(doc *Document) *topictree.Node {
	root := &topictree.Node{
		ID:     m.id(doc.ID),
		Title:  doc.Title,
		TypeID: m.typeID(doc.TopicType, TypeHomepage),
		Tags:   doc.Tags,
		Metadata: map[string]any{
			"description": doc.Description,
		},
	}

	for _, task := range doc.Tasks {
		root.Children = append(root.Children, m.mapTask(task, root.ID))
	}

	for _, step := range doc.Steps {
		root.Children = append(root.Children, m.mapStep(step, root.ID))
	}

	return root
}

func (m *Mapper) mapTask(task Task, parentID string) *topictree.Node {
	node := &topictree.Node{
		ID:       m.id(task.ID),
		Title:    task.Title,
		TypeID:   m.typeID(task.TopicType, TypeProcessPage),
		ParentID: parentID,
		Tags:     task.Tags,
		Metadata: map[string]any{
			"description": task.Description,
		},
	}

	for _, step := range task.Steps {
		node.Children = append(node.Children, m.mapStep(step, node.ID))
	}

	return node
}

func (m *Mapper) mapStep(step Step, parentID string) *topictree.Node {
	node := &topictree.Node{
		ID:       m.id(step.ID),
		Title:    step.Title,
		TypeID:   m.typeID(step.TopicType, TypeStep),
		ParentID: parentID,
		Tags:     step.Tags,
		Metadata: map[string]any{
			"description": step.Description,
		},
	}

	for _, instr := range step.Instructions {
		node.Children = append(node.Children, m.mapInstruction(instr, node.ID))
	}

	return node
}

func (m *Mapper) mapInstruction(instr Instruction, parentID string) *topictree.Node {
	node := &topictree.Node{
		ID:       m.id(instr.ID),
		Title:    instr.Title,
		TypeID:   m.typeID(instr.TopicType, TypeInstruction),
		ParentID: parentID,
		Tags:     instr.Tags,
	}

	// Instruction bodies live in a content part, not in metadata.
	if instr.Content != "" {
		node.Parts = map[string]map[string]any{
			"contentPart": {"text": instr.Content},
		}
	}

	return node
}

// id returns the document-supplied ID, or a generated one when absent.
func (m *Mapper) id(given string) string {
	if given != "" {
		return given
	}

	return m.newID()
}

// typeID resolves a topicType name to its ID, falling back to the level
// default for unknown or missing names.
func (m *Mapper) typeID(name, fallback string) string {
	if id, ok := m.topicTypes[name]; ok {
		return id
	}

	return fallback
}
