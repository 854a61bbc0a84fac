package graph

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrNodeNotFound    = errors.New("node not found")
	ErrEdgeNotFound    = errors.New("edge not found")
	ErrDuplicateNode   = errors.New("duplicate node id")
	ErrDuplicateEdge   = errors.New("duplicate edge")
	ErrMissingEndpoint = errors.New("edge endpoint does not exist")
)

// Kind distinguishes taxonomy categories from document references.
type Kind string

const (
	KindCategory  Kind = "category"
	KindReference Kind = "reference"
)

// Anchor is the side of a node an edge attaches to.
type Anchor string

const (
	AnchorTop    Anchor = "top"
	AnchorRight  Anchor = "right"
	AnchorBottom Anchor = "bottom"
	AnchorLeft   Anchor = "left"
)

// Opposite returns the anchor on the other side of a node.
func (a Anchor) Opposite() Anchor {
	switch a {
	case AnchorTop:
		return AnchorBottom
	case AnchorBottom:
		return AnchorTop
	case AnchorLeft:
		return AnchorRight
	default:
		return AnchorLeft
	}
}

// Valid reports whether a is one of the four sides.
func (a Anchor) Valid() bool {
	switch a {
	case AnchorTop, AnchorRight, AnchorBottom, AnchorLeft:
		return true
	}
	return false
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Reference is the payload carried by reference nodes.
type Reference struct {
	DocumentID string `json:"documentId"`
	DOI        string `json:"doi,omitempty"`
	Abstract   string `json:"abstract,omitempty"`
	Compact    bool   `json:"compact"`
}

// Node is a vertex of the knowledge graph.
//
// ParentID records the logical parent the node was built under. Edges are
// the authoritative connectivity; ParentID is only kept for re-layout.
type Node struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	Label     string     `json:"label"`
	Color     string     `json:"color,omitempty"`
	ParentID  string     `json:"parentId,omitempty"`
	Position  Position   `json:"position"`
	Reference *Reference `json:"reference,omitempty"`
	Selected  bool       `json:"selected,omitempty"`
	Editing   bool       `json:"editing,omitempty"`
}

func (n Node) clone() *Node {
	c := n
	if n.Reference != nil {
		r := *n.Reference
		c.Reference = &r
	}
	return &c
}

type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceAnchor Anchor `json:"sourceAnchor,omitempty"`
	TargetAnchor Anchor `json:"targetAnchor,omitempty"`
	Selected     bool   `json:"selected,omitempty"`
}

// EdgeID is the conventional id of the edge from parent to child.
func EdgeID(parent, child string) string {
	return "e-" + parent + "-" + child
}

type pair struct{ source, target string }

// Document is the graph of nodes and directed edges shown to the user.
// Node and edge ids are unique, both endpoints of every edge exist, and there
// is at most one edge per ordered (source, target) pair.
//
// Document is not safe for concurrent use.
type Document struct {
	nodes []*Node
	edges []*Edge

	nodeByID map[string]*Node
	edgeByID map[string]*Edge
	pairs    map[pair]string
}

// New returns an empty document.
func New() *Document {
	return &Document{
		nodeByID: make(map[string]*Node),
		edgeByID: make(map[string]*Edge),
		pairs:    make(map[pair]string),
	}
}

func (d *Document) Len() int     { return len(d.nodes) }
func (d *Document) EdgeLen() int { return len(d.edges) }
func (d *Document) Empty() bool  { return len(d.nodes) == 0 }

func (d *Document) Has(id string) bool {
	_, ok := d.nodeByID[id]
	return ok
}

// AddNode inserts a copy of n.
func (d *Document) AddNode(n Node) error {
	if n.ID == "" {
		return fmt.Errorf("add node: empty id")
	}
	if _, ok := d.nodeByID[n.ID]; ok {
		return fmt.Errorf("add node %q: %w", n.ID, ErrDuplicateNode)
	}
	if n.Kind == "" {
		n.Kind = KindCategory
	}
	c := n.clone()
	d.nodes = append(d.nodes, c)
	d.nodeByID[c.ID] = c
	return nil
}

// AddEdge inserts a copy of e. An empty id is filled with EdgeID.
func (d *Document) AddEdge(e Edge) error {
	if e.ID == "" {
		e.ID = EdgeID(e.Source, e.Target)
	}
	if _, ok := d.edgeByID[e.ID]; ok {
		return fmt.Errorf("add edge %q: %w", e.ID, ErrDuplicateEdge)
	}
	if !d.Has(e.Source) || !d.Has(e.Target) {
		return fmt.Errorf("add edge %q: %w", e.ID, ErrMissingEndpoint)
	}
	p := pair{e.Source, e.Target}
	if existing, ok := d.pairs[p]; ok {
		return fmt.Errorf("add edge %q (already connected by %q): %w", e.ID, existing, ErrDuplicateEdge)
	}
	c := e
	d.edges = append(d.edges, &c)
	d.edgeByID[c.ID] = &c
	d.pairs[p] = c.ID
	return nil
}

// Node returns a copy of the node with the given id.
func (d *Document) Node(id string) (Node, bool) {
	n, ok := d.nodeByID[id]
	if !ok {
		return Node{}, false
	}
	return *n.clone(), true
}

// Edge returns a copy of the edge with the given id.
func (d *Document) Edge(id string) (Edge, bool) {
	e, ok := d.edgeByID[id]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Nodes returns copies of all nodes in insertion order.
func (d *Document) Nodes() []Node {
	out := make([]Node, len(d.nodes))
	for i, n := range d.nodes {
		out[i] = *n.clone()
	}
	return out
}

// Edges returns copies of all edges in insertion order.
func (d *Document) Edges() []Edge {
	out := make([]Edge, len(d.edges))
	for i, e := range d.edges {
		out[i] = *e
	}
	return out
}

// Outgoing returns the edges whose source is id.
func (d *Document) Outgoing(id string) []Edge {
	var out []Edge
	for _, e := range d.edges {
		if e.Source == id {
			out = append(out, *e)
		}
	}
	return out
}

// Incoming returns the edges whose target is id.
func (d *Document) Incoming(id string) []Edge {
	var out []Edge
	for _, e := range d.edges {
		if e.Target == id {
			out = append(out, *e)
		}
	}
	return out
}

// Reachable returns id and every node reachable from it over outgoing
// edges, in breadth-first order. It returns nil if id does not exist.
func (d *Document) Reachable(id string) []string {
	if !d.Has(id) {
		return nil
	}
	out := make(map[string][]string)
	for _, e := range d.edges {
		out[e.Source] = append(out[e.Source], e.Target)
	}
	seen := map[string]bool{id: true}
	order := []string{id}
	for i := 0; i < len(order); i++ {
		for _, next := range out[order[i]] {
			if !seen[next] {
				seen[next] = true
				order = append(order, next)
			}
		}
	}
	return order
}

func (d *Document) Rename(id, label string) error {
	n, ok := d.nodeByID[id]
	if !ok {
		return fmt.Errorf("rename %q: %w", id, ErrNodeNotFound)
	}
	n.Label = label
	return nil
}

func (d *Document) Recolor(id, color string) error {
	n, ok := d.nodeByID[id]
	if !ok {
		return fmt.Errorf("recolor %q: %w", id, ErrNodeNotFound)
	}
	n.Color = color
	return nil
}

func (d *Document) Move(id string, pos Position) error {
	n, ok := d.nodeByID[id]
	if !ok {
		return fmt.Errorf("move %q: %w", id, ErrNodeNotFound)
	}
	n.Position = pos
	return nil
}

// ToggleCompact flips the compact display flag of a reference node.
func (d *Document) ToggleCompact(id string) (bool, error) {
	n, ok := d.nodeByID[id]
	if !ok {
		return false, fmt.Errorf("toggle compact %q: %w", id, ErrNodeNotFound)
	}
	if n.Reference == nil {
		return false, fmt.Errorf("toggle compact %q: not a reference node", id)
	}
	n.Reference.Compact = !n.Reference.Compact
	return n.Reference.Compact, nil
}

// RemoveNode deletes a node together with every edge touching it.
func (d *Document) RemoveNode(id string) (Change, error) {
	if !d.Has(id) {
		return Change{}, fmt.Errorf("remove node %q: %w", id, ErrNodeNotFound)
	}
	return d.removeNodes(map[string]bool{id: true}, nil), nil
}

func (d *Document) RemoveEdge(id string) (Change, error) {
	if _, ok := d.edgeByID[id]; !ok {
		return Change{}, fmt.Errorf("remove edge %q: %w", id, ErrEdgeNotFound)
	}
	return d.removeNodes(nil, map[string]bool{id: true}), nil
}

// removeNodes drops the given nodes, the given edges, and every edge
// touching a dropped node.
func (d *Document) removeNodes(nodes, edges map[string]bool) Change {
	var ch Change
	keptEdges := d.edges[:0]
	for _, e := range d.edges {
		if edges[e.ID] || nodes[e.Source] || nodes[e.Target] {
			delete(d.edgeByID, e.ID)
			delete(d.pairs, pair{e.Source, e.Target})
			ch.EdgesRemoved = append(ch.EdgesRemoved, e.ID)
			continue
		}
		keptEdges = append(keptEdges, e)
	}
	clear(d.edges[len(keptEdges):])
	d.edges = keptEdges

	if len(nodes) > 0 {
		keptNodes := d.nodes[:0]
		for _, n := range d.nodes {
			if nodes[n.ID] {
				delete(d.nodeByID, n.ID)
				ch.NodesRemoved = append(ch.NodesRemoved, n.ID)
				continue
			}
			keptNodes = append(keptNodes, n)
		}
		clear(d.nodes[len(keptNodes):])
		d.nodes = keptNodes
	}
	return ch
}

// MaxX returns the largest x coordinate in the document, or 0 when empty.
func (d *Document) MaxX() float64 {
	if len(d.nodes) == 0 {
		return 0
	}
	maxX := d.nodes[0].Position.X
	for _, n := range d.nodes[1:] {
		if n.Position.X > maxX {
			maxX = n.Position.X
		}
	}
	return maxX
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	c := New()
	c.nodes = make([]*Node, len(d.nodes))
	for i, n := range d.nodes {
		cn := n.clone()
		c.nodes[i] = cn
		c.nodeByID[cn.ID] = cn
	}
	c.edges = make([]*Edge, len(d.edges))
	for i, e := range d.edges {
		ce := *e
		c.edges[i] = &ce
		c.edgeByID[ce.ID] = &ce
		c.pairs[pair{ce.Source, ce.Target}] = ce.ID
	}
	return c
}

type wireDocument struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

func (d *Document) MarshalJSON() ([]byte, error) {
	w := wireDocument{Nodes: d.nodes, Edges: d.edges}
	if w.Nodes == nil {
		w.Nodes = []*Node{}
	}
	if w.Edges == nil {
		w.Edges = []*Edge{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON rebuilds the document, rejecting input that breaks the
// id and endpoint invariants.
func (d *Document) UnmarshalJSON(data []byte) error {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	fresh := New()
	for _, n := range w.Nodes {
		if n == nil {
			continue
		}
		if err := fresh.AddNode(*n); err != nil {
			return err
		}
	}
	for _, e := range w.Edges {
		if e == nil {
			continue
		}
		if err := fresh.AddEdge(*e); err != nil {
			return err
		}
	}
	*d = *fresh
	return nil
}
