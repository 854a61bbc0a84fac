// Package taxonomy classifies a document set into a category tree induced
// by a text generation gateway, in two rounds: tree induction, then chunked
// per-document assignment.
package taxonomy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lthms/litmap/internal/gateway"
)

// RootID is the fixed id of every taxonomy root.
const RootID = "root"

// Tree is a taxonomy node.
type Tree struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Children []*Tree `json:"children,omitempty"`
}

// Category is a flattened taxonomy node.
type Category struct {
	ID       string
	Label    string
	ParentID string // "" for the root
	Depth    int
}

// DefaultTree is used whenever tree induction fails.
func DefaultTree() *Tree {
	return &Tree{
		ID:    RootID,
		Label: "Research Overview",
		Children: []*Tree{
			{ID: "cat_a", Label: "Category A"},
			{ID: "cat_b", Label: "Category B"},
		},
	}
}

// Flatten lists the tree in pre-order.
func (t *Tree) Flatten() []Category {
	var out []Category
	var walk func(n *Tree, parent string, depth int)
	walk = func(n *Tree, parent string, depth int) {
		out = append(out, Category{ID: n.ID, Label: n.Label, ParentID: parent, Depth: depth})
		for _, c := range n.Children {
			walk(c, n.ID, depth+1)
		}
	}
	walk(t, "", 0)
	return out
}

var errNotRooted = errors.New("tree root id is not \"root\"")

// ParseTree reads a taxonomy from an untrusted reply. A bare array is taken
// as the root's children and an object without an id becomes an empty root.
// The result is normalized: nodes deeper than maxDepth, nodes with empty
// ids and repeated ids are dropped with their subtrees.
func ParseTree(reply string, maxDepth int) (*Tree, error) {
	var raw json.RawMessage
	if err := gateway.DecodeStrictJSON(reply, &raw); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}

	var root *Tree
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var children []*Tree
		if err := json.Unmarshal(raw, &children); err != nil {
			return nil, fmt.Errorf("decode tree children: %w", err)
		}
		root = &Tree{ID: RootID, Children: children}
	} else {
		root = &Tree{}
		if err := json.Unmarshal(raw, root); err != nil {
			return nil, fmt.Errorf("decode tree: %w", err)
		}
		if root.ID == "" {
			root = &Tree{ID: RootID, Label: root.Label}
		}
	}
	if root.ID != RootID {
		return nil, errNotRooted
	}
	if root.Label == "" {
		root.Label = "Research Overview"
	}

	seen := map[string]bool{RootID: true}
	root.Children = normalize(root.Children, 1, maxDepth, seen)
	return root, nil
}

func normalize(nodes []*Tree, depth, maxDepth int, seen map[string]bool) []*Tree {
	if maxDepth > 0 && depth > maxDepth {
		return nil
	}
	var out []*Tree
	for _, n := range nodes {
		if n == nil {
			continue
		}
		n.ID = strings.TrimSpace(n.ID)
		if n.ID == "" || seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		if n.Label == "" {
			n.Label = n.ID
		}
		n.Children = normalize(n.Children, depth+1, maxDepth, seen)
		out = append(out, n)
	}
	return out
}
