package compose

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lthms/litmap/internal/graph"
	"github.com/lthms/litmap/internal/layout"
	"github.com/lthms/litmap/internal/search"
	"github.com/lthms/litmap/internal/taxonomy"
)

func sampleTree() *taxonomy.Tree {
	return &taxonomy.Tree{ID: "root", Label: "Overview", Children: []*taxonomy.Tree{
		{ID: "a", Label: "A", Children: []*taxonomy.Tree{{ID: "a1", Label: "A1"}}},
		{ID: "b", Label: "B"},
	}}
}

func sampleDocs() []search.Document {
	return []search.Document{
		{ID: "s1", Title: "First", Abstract: "abs 1", DOI: "10.1/1"},
		{ID: "s2", Title: "Second", Abstract: "abs 2"},
		{ID: "s3", Title: "Third"},
	}
}

func byID(nodes []graph.Node) map[string]graph.Node {
	m := make(map[string]graph.Node, len(nodes))
	for _, n := range nodes {
		m[n.ID] = n
	}
	return m
}

func TestBuild(t *testing.T) {
	nodes := Build(sampleTree(), []taxonomy.Assignment{
		{DocumentIndex: 0, CategoryID: "a1"},
		{DocumentIndex: 1, CategoryID: "ghost"},
		{DocumentIndex: 1, CategoryID: "b"},
		{DocumentIndex: 7, CategoryID: "a"},
	}, sampleDocs())

	var order []string
	for _, n := range nodes {
		order = append(order, n.ID)
	}
	if got := strings.Join(order, ","); got != "root,a,a1,b,p-0,p-1" {
		t.Fatalf("order = %s", got)
	}

	m := byID(nodes)
	if m["root"].Color != RootColor || m["a"].Color != Palette[0] || m["b"].Color != Palette[1] || m["a1"].Color != "" {
		t.Errorf("colors: root=%q a=%q b=%q a1=%q", m["root"].Color, m["a"].Color, m["b"].Color, m["a1"].Color)
	}

	p0 := m["p-0"]
	if p0.Kind != graph.KindReference || p0.ParentID != "a1" || p0.Label != "[Paper] #1 First" {
		t.Errorf("p-0 = %+v", p0)
	}
	if p0.Reference == nil || p0.Reference.DocumentID != "s1" || p0.Reference.DOI != "10.1/1" || p0.Reference.Compact {
		t.Errorf("p-0 reference = %+v", p0.Reference)
	}
	if m["p-1"].ParentID != "root" {
		t.Errorf("unknown category not coerced to root: %+v", m["p-1"])
	}
}

func TestBuildPaletteCycles(t *testing.T) {
	tree := &taxonomy.Tree{ID: "root"}
	for i := 0; i < 8; i++ {
		tree.Children = append(tree.Children, &taxonomy.Tree{ID: string(rune('a' + i))})
	}
	m := byID(Build(tree, nil, nil))
	if m["g"].Color != Palette[0] || m["h"].Color != Palette[1] {
		t.Errorf("g=%q h=%q", m["g"].Color, m["h"].Color)
	}
}

func TestBuildAvoidsCategoryCollision(t *testing.T) {
	tree := &taxonomy.Tree{ID: "root", Children: []*taxonomy.Tree{{ID: "p-0"}}}
	nodes := Build(tree, []taxonomy.Assignment{{DocumentIndex: 0, CategoryID: "p-0"}}, sampleDocs())
	m := byID(nodes)
	if len(m) != 3 || m["p-0-ref"].ParentID != "p-0" {
		t.Errorf("nodes = %+v", nodes)
	}
}

func TestLayoutEdges(t *testing.T) {
	b := Layout(Build(sampleTree(), []taxonomy.Assignment{{DocumentIndex: 0, CategoryID: "b"}}, sampleDocs()), layout.Config{})
	if len(b.Edges) != len(b.Nodes)-1 {
		t.Fatalf("%d nodes, %d edges", len(b.Nodes), len(b.Edges))
	}
	edges := map[string]graph.Edge{}
	for _, e := range b.Edges {
		edges[e.ID] = e
	}
	e, ok := edges["e-b-p-0"]
	if !ok || e.Source != "b" || e.Target != "p-0" {
		t.Errorf("edges = %+v", b.Edges)
	}
	root := byID(b.Nodes)["root"]
	if root.Position != (graph.Position{X: 450, Y: 350}) {
		t.Errorf("root at %+v", root.Position)
	}
}

func TestMergeIntoEmpty(t *testing.T) {
	doc := graph.New()
	b := Layout(Build(sampleTree(), nil, nil), layout.Config{})
	ch, err := Merge(doc, b, "batch_1_", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(ch.NodesAdded) != 4 || len(ch.EdgesAdded) != 3 {
		t.Errorf("change = %+v", ch)
	}
	n, ok := doc.Node("batch_1_a1")
	if !ok || n.ParentID != "batch_1_a" {
		t.Errorf("a1 = %+v", n)
	}
	if _, ok := doc.Edge("e-batch_1_a-batch_1_a1"); !ok {
		t.Error("namespaced edge missing")
	}
	root, _ := doc.Node("batch_1_root")
	if root.Position.X != 450 {
		t.Errorf("empty document must not shift: root x = %v", root.Position.X)
	}
}

func TestMergeOffsetsPastExistingContent(t *testing.T) {
	doc := graph.New()
	doc.AddNode(graph.Node{ID: "old", Position: graph.Position{X: 2000}})

	tree := sampleTree()
	tree.Children[0].Children[0].Children = []*taxonomy.Tree{{ID: "deep"}}
	b := Layout(Build(tree, []taxonomy.Assignment{{DocumentIndex: 0, CategoryID: "deep"}}, sampleDocs()), layout.Config{})

	if _, err := Merge(doc, b, "batch_2_", 0); err != nil {
		t.Fatal(err)
	}
	for _, n := range doc.Nodes() {
		if n.ID == "old" {
			continue
		}
		if n.Position.X <= 2000 {
			t.Errorf("%s at x=%v, not beyond existing max 2000", n.ID, n.Position.X)
		}
	}
	root, _ := doc.Node("batch_2_root")
	if root.Position.X != 450+2000+DefaultClearance {
		t.Errorf("root x = %v", root.Position.X)
	}
}

func TestMergeTwiceKeepsBothTrees(t *testing.T) {
	doc := graph.New()
	b := Layout(Build(sampleTree(), nil, nil), layout.Config{})
	p := NewPrefixer()
	if _, err := Merge(doc, b, p.Next(), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := Merge(doc, b, p.Next(), 0); err != nil {
		t.Fatal(err)
	}
	if doc.Len() != 8 || doc.EdgeLen() != 6 {
		t.Errorf("got %d nodes / %d edges", doc.Len(), doc.EdgeLen())
	}
}

func TestMergeIsAtomic(t *testing.T) {
	doc := graph.New()
	b := Layout(Build(sampleTree(), nil, nil), layout.Config{})
	Merge(doc, b, "x_", 0)

	_, err := Merge(doc, b, "x_", 0)
	if !errors.Is(err, graph.ErrDuplicateNode) {
		t.Fatalf("err = %v", err)
	}
	if doc.Len() != 4 {
		t.Errorf("failed merge changed the document: %d nodes", doc.Len())
	}
}

func TestPrefixerMonotonic(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	p := &Prefixer{now: func() time.Time { return fixed }}
	a, b, c := p.Next(), p.Next(), p.Next()
	if a != "batch_1700000000000_" || b != "batch_1700000000001_" || c != "batch_1700000000002_" {
		t.Errorf("prefixes = %s %s %s", a, b, c)
	}
}
