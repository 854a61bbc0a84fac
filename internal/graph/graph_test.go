package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"testing"
)

// chain builds root -> a -> b plus root -> c.
func chain(t *testing.T) *Document {
	t.Helper()
	d := New()
	for _, id := range []string{"root", "a", "b", "c"} {
		if err := d.AddNode(Node{ID: id, Label: id}); err != nil {
			t.Fatalf("AddNode(%s): %v", id, err)
		}
	}
	for _, e := range [][2]string{{"root", "a"}, {"a", "b"}, {"root", "c"}} {
		if err := d.AddEdge(Edge{Source: e[0], Target: e[1]}); err != nil {
			t.Fatalf("AddEdge(%v): %v", e, err)
		}
	}
	return d
}

func TestAddNodeDuplicate(t *testing.T) {
	d := New()
	if err := d.AddNode(Node{ID: "x"}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	err := d.AddNode(Node{ID: "x"})
	if !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("got %v, want ErrDuplicateNode", err)
	}
	if d.Len() != 1 {
		t.Errorf("Len = %d, want 1", d.Len())
	}
}

func TestAddNodeDefaultsKind(t *testing.T) {
	d := New()
	d.AddNode(Node{ID: "x"})
	n, _ := d.Node("x")
	if n.Kind != KindCategory {
		t.Errorf("Kind = %q, want %q", n.Kind, KindCategory)
	}
}

func TestAddEdgeInvariants(t *testing.T) {
	d := chain(t)

	tests := []struct {
		name string
		edge Edge
		want error
	}{
		{"missing source", Edge{Source: "nope", Target: "a"}, ErrMissingEndpoint},
		{"missing target", Edge{Source: "a", Target: "nope"}, ErrMissingEndpoint},
		{"duplicate id", Edge{ID: "e-root-a", Source: "b", Target: "c"}, ErrDuplicateEdge},
		{"duplicate pair", Edge{ID: "other", Source: "root", Target: "a"}, ErrDuplicateEdge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := d.AddEdge(tt.edge); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	// The reverse direction is a different ordered pair.
	if err := d.AddEdge(Edge{Source: "a", Target: "root"}); err != nil {
		t.Errorf("reverse edge rejected: %v", err)
	}
}

func TestNodeReturnsCopy(t *testing.T) {
	d := New()
	d.AddNode(Node{ID: "p", Kind: KindReference, Reference: &Reference{DocumentID: "1"}})
	n, _ := d.Node("p")
	n.Label = "changed"
	n.Reference.Compact = true

	got, _ := d.Node("p")
	if got.Label != "" || got.Reference.Compact {
		t.Errorf("mutating a returned node leaked into the document: %+v", got)
	}
}

func TestReachable(t *testing.T) {
	d := chain(t)

	tests := []struct {
		from string
		want []string
	}{
		{"root", []string{"root", "a", "c", "b"}},
		{"a", []string{"a", "b"}},
		{"b", []string{"b"}},
		{"missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			got := d.Reachable(tt.from)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Reachable(%s) = %v, want %v", tt.from, got, tt.want)
			}
		})
	}
}

func TestReachableCycle(t *testing.T) {
	d := chain(t)
	d.AddEdge(Edge{Source: "b", Target: "root"})
	got := d.Reachable("a")
	if len(got) != 4 {
		t.Errorf("Reachable(a) = %v, want all 4 nodes once", got)
	}
}

func TestRemoveNodeCascades(t *testing.T) {
	d := chain(t)
	ch, err := d.RemoveNode("a")
	if err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	if d.Has("a") {
		t.Error("a still present")
	}
	for _, e := range d.Edges() {
		if e.Source == "a" || e.Target == "a" {
			t.Errorf("dangling edge %s", e.ID)
		}
	}
	if len(ch.EdgesRemoved) != 2 {
		t.Errorf("EdgesRemoved = %v, want 2 edges", ch.EdgesRemoved)
	}
	// The pair index is cleaned up too.
	d.AddNode(Node{ID: "a"})
	if err := d.AddEdge(Edge{Source: "root", Target: "a"}); err != nil {
		t.Errorf("re-adding root->a: %v", err)
	}
}

func TestRemoveMissing(t *testing.T) {
	d := chain(t)
	if _, err := d.RemoveNode("zzz"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("RemoveNode: got %v", err)
	}
	if _, err := d.RemoveEdge("zzz"); !errors.Is(err, ErrEdgeNotFound) {
		t.Errorf("RemoveEdge: got %v", err)
	}
}

func TestMaxX(t *testing.T) {
	d := New()
	if got := d.MaxX(); got != 0 {
		t.Errorf("empty MaxX = %v", got)
	}
	d.AddNode(Node{ID: "a", Position: Position{X: -10}})
	d.AddNode(Node{ID: "b", Position: Position{X: 800}})
	d.AddNode(Node{ID: "c", Position: Position{X: 100}})
	if got := d.MaxX(); got != 800 {
		t.Errorf("MaxX = %v, want 800", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	d := chain(t)
	c := d.Clone()
	c.Rename("a", "renamed")
	c.RemoveNode("c")

	n, _ := d.Node("a")
	if n.Label != "a" {
		t.Errorf("original label changed to %q", n.Label)
	}
	if !d.Has("c") || d.EdgeLen() != 3 {
		t.Error("original lost nodes or edges after editing the clone")
	}
}

func TestToggleCompact(t *testing.T) {
	d := New()
	d.AddNode(Node{ID: "p", Kind: KindReference, Reference: &Reference{}})
	d.AddNode(Node{ID: "c"})

	on, err := d.ToggleCompact("p")
	if err != nil || !on {
		t.Fatalf("ToggleCompact = %v, %v", on, err)
	}
	on, _ = d.ToggleCompact("p")
	if on {
		t.Error("second toggle should clear the flag")
	}
	if _, err := d.ToggleCompact("c"); err == nil {
		t.Error("expected error for category node")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	d := chain(t)
	d.Recolor("root", "#3b82f6")
	d.Move("b", Position{X: 12.5, Y: -3})

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got := New()
	if err := json.Unmarshal(data, got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Len() != 4 || got.EdgeLen() != 3 {
		t.Fatalf("got %d nodes / %d edges", got.Len(), got.EdgeLen())
	}
	b, _ := got.Node("b")
	if b.Position != (Position{X: 12.5, Y: -3}) {
		t.Errorf("b position = %+v", b.Position)
	}
	if !slices.Equal(got.Reachable("root"), d.Reachable("root")) {
		t.Error("connectivity changed across round trip")
	}
}

func TestJSONEmptyDocument(t *testing.T) {
	data, _ := json.Marshal(New())
	if string(data) != `{"nodes":[],"edges":[]}` {
		t.Errorf("got %s", data)
	}
}

func TestUnmarshalRejectsDanglingEdge(t *testing.T) {
	raw := `{"nodes":[{"id":"a","kind":"category","label":"A","position":{"x":0,"y":0}}],
	         "edges":[{"id":"e","source":"a","target":"b"}]}`
	d := New()
	if err := json.Unmarshal([]byte(raw), d); !errors.Is(err, ErrMissingEndpoint) {
		t.Errorf("got %v, want ErrMissingEndpoint", err)
	}
}

func seqIDs() func() string {
	i := 0
	return func() string {
		i++
		return fmt.Sprintf("n%d", i)
	}
}
