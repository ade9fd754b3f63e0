// Package topictree defines the topic tree consumed by the importer and
// the ordered traversals over it. Trees are built once by the mapper and
// treated as immutable afterwards; the traversal order is a named function
// output, not a side effect of recursion interleaved with network calls.
package topictree

import (
	"fmt"
)

// Node is one topic in the tree. Children keep the definition order of
// the source document. Parts maps part name to its JSON content.
type Node struct {
	ID       string
	Title    string
	TypeID   string
	ParentID string
	Children []*Node
	Tags     []string
	Metadata map[string]any
	Parts    map[string]map[string]any
}

// Validate checks the structural invariants: every ID appears exactly
// once, each child's ParentID equals its container's ID, and the root has
// no parent. Unique IDs plus parent linkage make cycles impossible.
func Validate(root *Node) error {
	if root == nil {
		return fmt.Errorf("topictree: nil root")
	}

	if root.ParentID != "" {
		return fmt.Errorf("topictree: root %q has parent %q", root.ID, root.ParentID)
	}

	seen := make(map[string]bool)

	return validateNode(root, seen)
}

func validateNode(n *Node, seen map[string]bool) error {
	if n.ID == "" {
		return fmt.Errorf("topictree: node %q has empty ID", n.Title)
	}

	if seen[n.ID] {
		return fmt.Errorf("topictree: duplicate topic ID %q", n.ID)
	}

	seen[n.ID] = true

	for _, child := range n.Children {
		if child.ParentID != n.ID {
			return fmt.Errorf("topictree: child %q has parent %q, contained in %q",
				child.ID, child.ParentID, n.ID)
		}

		if err := validateNode(child, seen); err != nil {
			return err
		}
	}

	return nil
}

// PreOrder returns the nodes parent-before-children. This is the create
// order: a child's create call references its parent's ID, which must
// already exist remotely.
func PreOrder(root *Node) []*Node {
	var out []*Node

	var walk func(*Node)
	walk = func(n *Node) {
		out = append(out, n)
		for _, child := range n.Children {
			walk(child)
		}
	}

	walk(root)

	return out
}

// PostOrder returns the nodes children-before-parent. This is the delete
// order: no node may be deleted while any of its children still exist
// remotely.
func PostOrder(root *Node) []*Node {
	var out []*Node

	var walk func(*Node)
	walk = func(n *Node) {
		for _, child := range n.Children {
			walk(child)
		}

		out = append(out, n)
	}

	walk(root)

	return out
}

// Count returns the number of nodes in the tree.
func Count(root *Node) int {
	if root == nil {
		return 0
	}

	n := 1
	for _, child := range root.Children {
		n += Count(child)
	}

	return n
}
