package graph

import (
	"errors"
	"slices"
	"testing"
)

// star builds hub -> {x, y, z} plus x -> y.
func star(t *testing.T) *Document {
	t.Helper()
	d := New()
	for _, id := range []string{"hub", "x", "y", "z"} {
		d.AddNode(Node{ID: id, Label: id})
	}
	for _, e := range [][2]string{{"hub", "x"}, {"hub", "y"}, {"hub", "z"}, {"x", "y"}} {
		if err := d.AddEdge(Edge{Source: e[0], Target: e[1]}); err != nil {
			t.Fatalf("AddEdge: %v", err)
		}
	}
	return d
}

func edgeIDs(d *Document) []string {
	var ids []string
	for _, e := range d.Edges() {
		ids = append(ids, e.ID)
	}
	return ids
}

func TestDeleteSelectedCascades(t *testing.T) {
	d := star(t)
	d.SelectNode("x", true)
	d.SelectEdge("e-hub-z", true)

	ch := d.DeleteSelected()

	if d.Has("x") {
		t.Error("x not deleted")
	}
	want := []string{"e-hub-y"}
	if got := edgeIDs(d); !slices.Equal(got, want) {
		t.Errorf("edges = %v, want %v", got, want)
	}
	if !slices.Equal(ch.NodesRemoved, []string{"x"}) {
		t.Errorf("NodesRemoved = %v", ch.NodesRemoved)
	}
	if len(ch.EdgesRemoved) != 3 {
		t.Errorf("EdgesRemoved = %v, want 3", ch.EdgesRemoved)
	}
}

func TestDeleteSelectedNothing(t *testing.T) {
	d := star(t)
	if ch := d.DeleteSelected(); !ch.Empty() {
		t.Errorf("expected empty change, got %+v", ch)
	}
}

func TestRecolorSelected(t *testing.T) {
	d := star(t)
	d.SelectNode("y", true)
	d.SelectNode("z", true)
	ch := d.RecolorSelected("#ef4444")

	for _, n := range d.Nodes() {
		want := ""
		if n.ID == "y" || n.ID == "z" {
			want = "#ef4444"
		}
		if n.Color != want {
			t.Errorf("%s color = %q, want %q", n.ID, n.Color, want)
		}
	}
	if len(ch.NodesUpdated) != 2 {
		t.Errorf("NodesUpdated = %v", ch.NodesUpdated)
	}
}

func TestDisconnectSelected(t *testing.T) {
	t.Run("needs two nodes", func(t *testing.T) {
		d := star(t)
		d.SelectNode("hub", true)
		if ch := d.DisconnectSelected(); !ch.Empty() {
			t.Errorf("single selection changed graph: %+v", ch)
		}
		if d.EdgeLen() != 4 {
			t.Errorf("EdgeLen = %d", d.EdgeLen())
		}
	})

	t.Run("removes inner edges only", func(t *testing.T) {
		d := star(t)
		d.SelectNode("hub", true)
		d.SelectNode("x", true)
		d.SelectNode("y", true)
		d.DisconnectSelected()

		want := []string{"e-hub-z"}
		if got := edgeIDs(d); !slices.Equal(got, want) {
			t.Errorf("edges = %v, want %v", got, want)
		}
		if d.Len() != 4 {
			t.Error("disconnect must not delete nodes")
		}
	})
}

func TestDeleteTarget(t *testing.T) {
	t.Run("selected target acts on selection", func(t *testing.T) {
		d := star(t)
		d.SelectNode("x", true)
		d.SelectNode("z", true)
		if _, err := d.DeleteTarget("x"); err != nil {
			t.Fatal(err)
		}
		if d.Has("x") || d.Has("z") {
			t.Error("selection not deleted")
		}
	})

	t.Run("unselected target acts alone", func(t *testing.T) {
		d := star(t)
		d.SelectNode("x", true)
		if _, err := d.DeleteTarget("z"); err != nil {
			t.Fatal(err)
		}
		if d.Has("z") {
			t.Error("z not deleted")
		}
		if !d.Has("x") {
			t.Error("selected x should survive")
		}
	})

	t.Run("edge target", func(t *testing.T) {
		d := star(t)
		if _, err := d.DeleteTarget("e-x-y"); err != nil {
			t.Fatal(err)
		}
		if d.EdgeLen() != 3 || d.Len() != 4 {
			t.Errorf("got %d nodes / %d edges", d.Len(), d.EdgeLen())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		d := star(t)
		if _, err := d.DeleteTarget("nope"); err == nil {
			t.Error("expected error")
		}
	})
}

func TestRecolorTarget(t *testing.T) {
	d := star(t)
	d.SelectNode("x", true)
	d.SelectNode("y", true)

	d.RecolorTarget("z", "#000000")
	d.RecolorTarget("x", "#ffffff")

	colors := map[string]string{}
	for _, n := range d.Nodes() {
		colors[n.ID] = n.Color
	}
	want := map[string]string{"hub": "", "x": "#ffffff", "y": "#ffffff", "z": "#000000"}
	for id, c := range want {
		if colors[id] != c {
			t.Errorf("%s = %q, want %q", id, colors[id], c)
		}
	}
}

func TestDisconnectTargetUnselected(t *testing.T) {
	d := star(t)
	if _, err := d.DisconnectTarget("y"); err != nil {
		t.Fatal(err)
	}
	want := []string{"e-hub-x", "e-hub-z"}
	if got := edgeIDs(d); !slices.Equal(got, want) {
		t.Errorf("edges = %v, want %v", got, want)
	}
}

func TestRenameMode(t *testing.T) {
	d := star(t)
	d.BeginRename("x")
	d.BeginRename("y")

	id, ok := d.Editing()
	if !ok || id != "y" {
		t.Fatalf("Editing = %q, %v; want y", id, ok)
	}
	if err := d.CommitRename("y", "Why"); err != nil {
		t.Fatal(err)
	}
	if _, ok := d.Editing(); ok {
		t.Error("still editing after commit")
	}
	n, _ := d.Node("y")
	if n.Label != "Why" {
		t.Errorf("label = %q", n.Label)
	}
}

func TestClearSelection(t *testing.T) {
	d := star(t)
	d.SelectNode("x", true)
	d.SelectEdge("e-hub-x", true)
	d.ClearSelection()
	if len(d.SelectedNodes()) != 0 || len(d.SelectedEdges()) != 0 {
		t.Error("selection not cleared")
	}
}

func TestAddChildren(t *testing.T) {
	tests := []struct {
		dir        Anchor
		kind       Kind
		wantSource Anchor
		wantTarget Anchor
	}{
		{AnchorRight, KindCategory, AnchorRight, AnchorLeft},
		{AnchorLeft, KindCategory, AnchorLeft, AnchorRight},
		{AnchorBottom, KindReference, AnchorBottom, AnchorTop},
		{AnchorTop, KindCategory, AnchorTop, AnchorBottom},
	}
	for _, tt := range tests {
		t.Run(string(tt.dir), func(t *testing.T) {
			d := New()
			d.AddNode(Node{ID: "p", Position: Position{X: 1000, Y: 1000}})

			ch, err := d.AddChildren("p", 3, tt.kind, tt.dir, seqIDs())
			if err != nil {
				t.Fatalf("AddChildren: %v", err)
			}
			if len(ch.NodesAdded) != 3 || len(ch.EdgesAdded) != 3 {
				t.Fatalf("change = %+v", ch)
			}

			var xs, ys []float64
			for _, id := range ch.NodesAdded {
				n, _ := d.Node(id)
				if n.Kind != tt.kind {
					t.Errorf("%s kind = %q", id, n.Kind)
				}
				xs = append(xs, n.Position.X)
				ys = append(ys, n.Position.Y)
			}
			for _, e := range d.Outgoing("p") {
				if e.SourceAnchor != tt.wantSource || e.TargetAnchor != tt.wantTarget {
					t.Errorf("%s anchors = %s/%s", e.ID, e.SourceAnchor, e.TargetAnchor)
				}
			}

			switch tt.dir {
			case AnchorRight:
				if xs[0] <= 1000 || xs[0] != xs[2] || !(ys[0] < ys[1] && ys[1] < ys[2]) {
					t.Errorf("right stack misplaced: xs=%v ys=%v", xs, ys)
				}
			case AnchorLeft:
				if xs[0] >= 1000 || xs[0] != xs[2] || ys[1] != 1000+categoryHeight/2 {
					t.Errorf("left stack misplaced: xs=%v ys=%v", xs, ys)
				}
			case AnchorBottom:
				if ys[0] <= 1000 || ys[0] != ys[2] || !(xs[0] < xs[1] && xs[1] < xs[2]) {
					t.Errorf("bottom row misplaced: xs=%v ys=%v", xs, ys)
				}
			case AnchorTop:
				if ys[0] >= 1000 || xs[1] != 1000+categoryWidth/2 {
					t.Errorf("top row misplaced: xs=%v ys=%v", xs, ys)
				}
			}
		})
	}
}

func TestAddChildrenLabels(t *testing.T) {
	d := New()
	d.AddNode(Node{ID: "p"})
	ch, _ := d.AddChildren("p", 2, KindCategory, AnchorRight, seqIDs())
	for i, id := range ch.NodesAdded {
		n, _ := d.Node(id)
		want := []string{"Node 1", "Node 2"}[i]
		if n.Label != want {
			t.Errorf("label %d = %q, want %q", i, n.Label, want)
		}
	}
}

func TestAddChildrenErrors(t *testing.T) {
	d := New()
	d.AddNode(Node{ID: "p"})
	if _, err := d.AddChildren("missing", 1, KindCategory, AnchorRight, seqIDs()); err == nil {
		t.Error("missing parent: expected error")
	}
	if _, err := d.AddChildren("p", 1, KindCategory, "diagonal", seqIDs()); err == nil {
		t.Error("bad direction: expected error")
	}
	if ch, err := d.AddChildren("p", 0, KindCategory, AnchorRight, seqIDs()); err != nil || !ch.Empty() {
		t.Errorf("zero count = %+v, %v", ch, err)
	}
}

func TestAddFreeNode(t *testing.T) {
	d := New()
	if _, err := d.AddFreeNode("c", "", "", Position{X: 5, Y: 6}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AddFreeNode("r", KindReference, "", Position{}); err != nil {
		t.Fatal(err)
	}
	c, _ := d.Node("c")
	r, _ := d.Node("r")
	if c.Kind != KindCategory || c.Label != "New Node" || c.Position.X != 5 {
		t.Errorf("c = %+v", c)
	}
	if r.Label != "New Reference" || r.Reference == nil {
		t.Errorf("r = %+v", r)
	}
	if _, err := d.AddFreeNode("c", KindCategory, "again", Position{}); !errors.Is(err, ErrDuplicateNode) {
		t.Errorf("duplicate: %v", err)
	}
}
