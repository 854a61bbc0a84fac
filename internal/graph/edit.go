package graph

import (
	"fmt"
)

// Change summarizes what an edit did to a document.
type Change struct {
	NodesAdded   []string `json:"nodesAdded,omitempty"`
	NodesRemoved []string `json:"nodesRemoved,omitempty"`
	NodesUpdated []string `json:"nodesUpdated,omitempty"`
	EdgesAdded   []string `json:"edgesAdded,omitempty"`
	EdgesRemoved []string `json:"edgesRemoved,omitempty"`
}

// Empty reports whether the edit left the document untouched.
func (c Change) Empty() bool {
	return len(c.NodesAdded) == 0 && len(c.NodesRemoved) == 0 && len(c.NodesUpdated) == 0 &&
		len(c.EdgesAdded) == 0 && len(c.EdgesRemoved) == 0
}

// Merge appends other's entries to c.
func (c Change) Merge(other Change) Change {
	c.NodesAdded = append(c.NodesAdded, other.NodesAdded...)
	c.NodesRemoved = append(c.NodesRemoved, other.NodesRemoved...)
	c.NodesUpdated = append(c.NodesUpdated, other.NodesUpdated...)
	c.EdgesAdded = append(c.EdgesAdded, other.EdgesAdded...)
	c.EdgesRemoved = append(c.EdgesRemoved, other.EdgesRemoved...)
	return c
}

// --- Selection ---

func (d *Document) SelectNode(id string, selected bool) error {
	n, ok := d.nodeByID[id]
	if !ok {
		return fmt.Errorf("select %q: %w", id, ErrNodeNotFound)
	}
	n.Selected = selected
	return nil
}

func (d *Document) SelectEdge(id string, selected bool) error {
	e, ok := d.edgeByID[id]
	if !ok {
		return fmt.Errorf("select edge %q: %w", id, ErrEdgeNotFound)
	}
	e.Selected = selected
	return nil
}

// ClearSelection deselects every node and edge.
func (d *Document) ClearSelection() {
	for _, n := range d.nodes {
		n.Selected = false
	}
	for _, e := range d.edges {
		e.Selected = false
	}
}

// SelectedNodes returns the ids of selected nodes in document order.
func (d *Document) SelectedNodes() []string {
	var ids []string
	for _, n := range d.nodes {
		if n.Selected {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func (d *Document) SelectedEdges() []string {
	var ids []string
	for _, e := range d.edges {
		if e.Selected {
			ids = append(ids, e.ID)
		}
	}
	return ids
}

// --- Bulk edits over the current selection ---

// DeleteSelected removes the selected nodes, the selected edges, and every
// edge touching a removed node.
func (d *Document) DeleteSelected() Change {
	nodes := make(map[string]bool)
	for _, id := range d.SelectedNodes() {
		nodes[id] = true
	}
	edges := make(map[string]bool)
	for _, id := range d.SelectedEdges() {
		edges[id] = true
	}
	if len(nodes) == 0 && len(edges) == 0 {
		return Change{}
	}
	return d.removeNodes(nodes, edges)
}

// RecolorSelected sets the color of every selected node.
func (d *Document) RecolorSelected(color string) Change {
	var ch Change
	for _, n := range d.nodes {
		if n.Selected {
			n.Color = color
			ch.NodesUpdated = append(ch.NodesUpdated, n.ID)
		}
	}
	return ch
}

// DisconnectSelected removes every edge whose endpoints are both selected.
// It does nothing when fewer than two nodes are selected.
func (d *Document) DisconnectSelected() Change {
	selected := make(map[string]bool)
	for _, id := range d.SelectedNodes() {
		selected[id] = true
	}
	if len(selected) < 2 {
		return Change{}
	}
	edges := make(map[string]bool)
	for _, e := range d.edges {
		if selected[e.Source] && selected[e.Target] {
			edges[e.ID] = true
		}
	}
	if len(edges) == 0 {
		return Change{}
	}
	return d.removeNodes(nil, edges)
}

// --- Single-target edits ---
//
// A target that is part of the current selection acts on the whole
// selection. Any other target is edited on its own.

// DeleteTarget deletes a node or edge by id.
func (d *Document) DeleteTarget(id string) (Change, error) {
	if n, ok := d.nodeByID[id]; ok {
		if n.Selected {
			return d.DeleteSelected(), nil
		}
		return d.RemoveNode(id)
	}
	if e, ok := d.edgeByID[id]; ok {
		if e.Selected {
			return d.DeleteSelected(), nil
		}
		return d.RemoveEdge(id)
	}
	return Change{}, fmt.Errorf("delete %q: %w", id, ErrNodeNotFound)
}

func (d *Document) RecolorTarget(id, color string) (Change, error) {
	n, ok := d.nodeByID[id]
	if !ok {
		return Change{}, fmt.Errorf("recolor %q: %w", id, ErrNodeNotFound)
	}
	if n.Selected {
		return d.RecolorSelected(color), nil
	}
	n.Color = color
	return Change{NodesUpdated: []string{id}}, nil
}

// DisconnectTarget removes connections. A selected target disconnects the
// selection from itself; an unselected target loses every edge touching it.
func (d *Document) DisconnectTarget(id string) (Change, error) {
	n, ok := d.nodeByID[id]
	if !ok {
		return Change{}, fmt.Errorf("disconnect %q: %w", id, ErrNodeNotFound)
	}
	if n.Selected {
		return d.DisconnectSelected(), nil
	}
	edges := make(map[string]bool)
	for _, e := range d.edges {
		if e.Source == id || e.Target == id {
			edges[e.ID] = true
		}
	}
	if len(edges) == 0 {
		return Change{}, nil
	}
	return d.removeNodes(nil, edges), nil
}

// BeginRename puts exactly one node into label-editing mode.
func (d *Document) BeginRename(id string) error {
	if !d.Has(id) {
		return fmt.Errorf("rename %q: %w", id, ErrNodeNotFound)
	}
	for _, n := range d.nodes {
		n.Editing = n.ID == id
	}
	return nil
}

// CommitRename sets the label of a node and leaves editing mode.
func (d *Document) CommitRename(id, label string) error {
	n, ok := d.nodeByID[id]
	if !ok {
		return fmt.Errorf("rename %q: %w", id, ErrNodeNotFound)
	}
	n.Label = label
	n.Editing = false
	return nil
}

func (d *Document) CancelRename() {
	for _, n := range d.nodes {
		n.Editing = false
	}
}

// Editing returns the id of the node in editing mode, if any.
func (d *Document) Editing() (string, bool) {
	for _, n := range d.nodes {
		if n.Editing {
			return n.ID, true
		}
	}
	return "", false
}
