// Package compose turns a classification result into graph nodes and edges
// and merges them into an existing document.
package compose

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/lthms/litmap/internal/graph"
	"github.com/lthms/litmap/internal/layout"
	"github.com/lthms/litmap/internal/search"
	"github.com/lthms/litmap/internal/taxonomy"
)

// RootColor is the color of every batch root.
const RootColor = "#3b82f6"

// Palette colors depth-1 branches, cycling.
var Palette = []string{"#10b981", "#f59e0b", "#ef4444", "#8b5cf6", "#ec4899", "#06b6d4"}

// DefaultClearance separates a new batch from existing content.
const DefaultClearance = 1500

// Build returns the unpositioned nodes of one batch: the taxonomy in
// pre-order, then one reference node per assignment. An assignment whose
// category is not in the tree is placed under the root; one whose document
// index is out of range is skipped, as is a repeated document.
func Build(tree *taxonomy.Tree, assignments []taxonomy.Assignment, docs []search.Document) []graph.Node {
	var nodes []graph.Node
	known := make(map[string]bool)
	colorIdx := 0

	var walk func(t *taxonomy.Tree, parent string, depth int)
	walk = func(t *taxonomy.Tree, parent string, depth int) {
		n := graph.Node{
			ID:       t.ID,
			Kind:     graph.KindCategory,
			Label:    t.Label,
			ParentID: parent,
		}
		switch depth {
		case 0:
			n.Color = RootColor
		case 1:
			n.Color = Palette[colorIdx%len(Palette)]
			colorIdx++
		}
		known[t.ID] = true
		nodes = append(nodes, n)
		for _, c := range t.Children {
			walk(c, t.ID, depth+1)
		}
	}
	walk(tree, "", 0)

	placed := make(map[int]bool)
	for _, a := range assignments {
		if a.DocumentIndex < 0 || a.DocumentIndex >= len(docs) || placed[a.DocumentIndex] {
			continue
		}
		placed[a.DocumentIndex] = true
		doc := docs[a.DocumentIndex]
		parent := a.CategoryID
		if !known[parent] {
			parent = tree.ID
		}
		docID := doc.ID
		if docID == "" {
			docID = strconv.Itoa(a.DocumentIndex)
		}
		id := "p-" + strconv.Itoa(a.DocumentIndex)
		if known[id] {
			id += "-ref"
		}
		nodes = append(nodes, graph.Node{
			ID:       id,
			Kind:     graph.KindReference,
			Label:    fmt.Sprintf("[Paper] #%d %s", a.DocumentIndex+1, doc.Title),
			ParentID: parent,
			Reference: &graph.Reference{
				DocumentID: docID,
				DOI:        doc.DOI,
				Abstract:   doc.Abstract,
				Compact:    false,
			},
		})
	}
	return nodes
}

// Batch is a laid-out subgraph whose ids are not yet namespaced.
type Batch struct {
	Nodes []graph.Node
	Edges []graph.Edge
}

// Layout positions nodes by their ParentID and derives one anchored edge
// per parent/child pair.
func Layout(nodes []graph.Node, cfg layout.Config) Batch {
	items := make([]layout.Item, len(nodes))
	for i, n := range nodes {
		items[i] = layout.Item{ID: n.ID, ParentID: n.ParentID, Kind: n.Kind}
	}
	res := layout.Compute(items, cfg)

	b := Batch{Nodes: make([]graph.Node, len(nodes))}
	for i, n := range nodes {
		n.Position = res.Positions[n.ID]
		b.Nodes[i] = n
	}
	for _, l := range res.Links {
		b.Edges = append(b.Edges, graph.Edge{
			ID:           graph.EdgeID(l.Parent, l.Child),
			Source:       l.Parent,
			Target:       l.Child,
			SourceAnchor: l.SourceAnchor,
			TargetAnchor: l.TargetAnchor,
		})
	}
	return b
}

// Merge namespaces every id of b with prefix and adds it to doc. When doc
// already has content, the batch is shifted right so that every new node
// lies beyond the current maximum x plus clearance (0 = DefaultClearance).
// Merge is all or nothing: on error doc is unchanged.
func Merge(doc *graph.Document, b Batch, prefix string, clearance float64) (graph.Change, error) {
	if clearance <= 0 {
		clearance = DefaultClearance
	}

	var shift float64
	if !doc.Empty() && len(b.Nodes) > 0 {
		maxX := doc.MaxX()
		minX := b.Nodes[0].Position.X
		for _, n := range b.Nodes[1:] {
			minX = min(minX, n.Position.X)
		}
		shift = maxX + clearance
		if minX+shift <= maxX {
			shift = maxX + clearance - minX
		}
	}

	ns := func(id string) string {
		if id == "" {
			return ""
		}
		return prefix + id
	}

	next := doc.Clone()
	var ch graph.Change
	for _, n := range b.Nodes {
		n.ID = ns(n.ID)
		n.ParentID = ns(n.ParentID)
		n.Position.X += shift
		n.Selected, n.Editing = false, false
		if err := next.AddNode(n); err != nil {
			return graph.Change{}, fmt.Errorf("merge batch: %w", err)
		}
		ch.NodesAdded = append(ch.NodesAdded, n.ID)
	}
	for _, e := range b.Edges {
		e.Source = ns(e.Source)
		e.Target = ns(e.Target)
		e.ID = graph.EdgeID(e.Source, e.Target)
		if err := next.AddEdge(e); err != nil {
			return graph.Change{}, fmt.Errorf("merge batch: %w", err)
		}
		ch.EdgesAdded = append(ch.EdgesAdded, e.ID)
	}
	*doc = *next
	return ch, nil
}

// Prefixer hands out run prefixes of the form batch_<unix millis>_. Prefixes
// are strictly increasing even when requested within one millisecond.
type Prefixer struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewPrefixer() *Prefixer {
	return &Prefixer{now: time.Now}
}

func (p *Prefixer) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ms := p.now().UnixMilli()
	if ms <= p.last {
		ms = p.last + 1
	}
	p.last = ms
	return "batch_" + strconv.FormatInt(ms, 10) + "_"
}
